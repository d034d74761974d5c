package transform

import "strings"

// umdHead mirrors the UMD envelope produced by module transformers: an AMD
// branch for hosts with a loader and a globals branch that resolves imports
// against the host's global object.
const umdHead = `(function (global, factory) {
  if (typeof define === "function" && define.amd) {
    define(["require", "exports", "module"], factory);
  } else {
    var globals = %GLOBALS%;
    var mod = { exports: {} };
    factory(function (name) {
      if (Object.prototype.hasOwnProperty.call(globals, name)) {
        return global[globals[name]];
      }
      throw new Error("Cannot find module '" + name + "'");
    }, mod.exports, mod);
  }
})(typeof globalThis !== "undefined" ? globalThis : typeof self !== "undefined" ? self : this, function (require, exports, module) {
`

const umdTail = `});
`

func wrapUMD(body, globalsJSON string) string {
	var b strings.Builder
	b.Grow(len(umdHead) + len(body) + len(globalsJSON) + len(umdTail))
	b.WriteString(strings.Replace(umdHead, "%GLOBALS%", globalsJSON, 1))
	b.WriteString(body)
	if !strings.HasSuffix(body, "\n") {
		b.WriteByte('\n')
	}
	b.WriteString(umdTail)
	return b.String()
}
