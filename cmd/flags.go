package cmd

import (
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// addCompileFlags registers the compile preset overrides shared by the
// compile, run and watch commands.
func addCompileFlags(fs *pflag.FlagSet) {
	fs.String("language", "", "source language (tsx, ts, jsx, js); inferred from the file extension by default")
	fs.String("target", "", "ECMAScript target for the compiled output (e.g. es2017, esnext)")
	fs.Bool("minify", false, "minify the compiled output")
}

// bindCompileFlags binds the preset overrides that were set explicitly.
// Binding happens at run time because several commands share the keys.
func bindCompileFlags(fs *pflag.FlagSet) error {
	for key, name := range map[string]string{
		"compile.target": "target",
		"compile.minify": "minify",
	} {
		flag := fs.Lookup(name)
		if flag == nil || !flag.Changed {
			continue
		}
		if err := viper.BindPFlag(key, flag); err != nil {
			return err
		}
	}
	return nil
}
