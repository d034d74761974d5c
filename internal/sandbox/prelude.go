package sandbox

// prelude is evaluated once per runtime. It returns a function that takes
// the Go host object and yields the builtin libraries. Elements are plain
// objects; function components are resolved here so the host only ever sees
// tags, attributes and text.
const prelude = `(function () {
  var FRAGMENT = "#fragment";

  function flatten(value, out) {
    if (Array.isArray(value)) {
      for (var i = 0; i < value.length; i++) flatten(value[i], out);
    } else if (value !== undefined) {
      out.push(value);
    }
    return out;
  }

  function createElement(type, props) {
    var children = [];
    for (var i = 2; i < arguments.length; i++) flatten(arguments[i], children);
    var own = {};
    if (props) {
      for (var k in props) {
        if (k === "children" || k === "key" || k === "ref") continue;
        own[k] = props[k];
      }
      if (children.length === 0 && props.children !== undefined) flatten(props.children, children);
    }
    return { $$element: true, type: type, props: own, children: children };
  }

  function styleString(style) {
    var parts = [];
    for (var k in style) {
      var name = k.replace(/[A-Z]/g, function (c) { return "-" + c.toLowerCase(); });
      parts.push(name + ": " + style[k]);
    }
    return parts.join("; ");
  }

  function attrsOf(props) {
    var attrs = {};
    for (var k in props) {
      var v = props[k];
      if (v === null || v === undefined || v === false || typeof v === "function") continue;
      if (k === "className") k = "class";
      else if (k === "htmlFor") k = "for";
      if (k === "style" && typeof v === "object") v = styleString(v);
      else if (typeof v === "object") v = JSON.stringify(v);
      else if (v === true) v = "";
      attrs[k] = String(v);
    }
    return attrs;
  }

  function resolve(node, depth) {
    if (depth > 256) throw new Error("component tree too deep");
    if (node === null || node === undefined || typeof node === "boolean") return null;
    if (typeof node === "string" || typeof node === "number") return String(node);
    if (Array.isArray(node)) {
      return { tag: FRAGMENT, children: resolveAll(node, depth) };
    }
    if (!node.$$element) return String(node);

    if (typeof node.type === "function") {
      var props = {};
      for (var k in node.props) props[k] = node.props[k];
      if (node.children.length === 1) props.children = node.children[0];
      else if (node.children.length > 1) props.children = node.children;
      return resolve(node.type(props), depth + 1);
    }
    if (node.type === FRAGMENT) {
      return { tag: FRAGMENT, children: resolveAll(node.children, depth) };
    }
    return { tag: String(node.type), attrs: attrsOf(node.props), children: resolveAll(node.children, depth) };
  }

  function resolveAll(list, depth) {
    var out = [];
    for (var i = 0; i < list.length; i++) {
      var r = resolve(list[i], depth + 1);
      if (r !== null) out.push(r);
    }
    return out;
  }

  function containerId(container) {
    if (!container || typeof container.id !== "string") {
      throw new Error("Target container is not a DOM element.");
    }
    return container.id;
  }

  return function (host) {
    var React = {
      createElement: createElement,
      Fragment: FRAGMENT,
      useState: function (init) {
        return [typeof init === "function" ? init() : init, function () {}];
      },
      useReducer: function (reducer, init) { return [init, function () {}]; },
      useEffect: function () {},
      useLayoutEffect: function () {},
      useMemo: function (fn) { return fn(); },
      useCallback: function (fn) { return fn; },
      useRef: function (v) { return { current: v }; },
      createContext: function (v) {
        var ctx = { _value: v };
        ctx.Provider = function (p) { return p.children; };
        return ctx;
      },
      useContext: function (ctx) { return ctx ? ctx._value : undefined; },
      version: "18.0.0-tsxlive"
    };

    var ReactDOM = {
      createRoot: function (container) {
        var id = containerId(container);
        return {
          render: function (el) { host.render(id, resolve(el, 0)); },
          unmount: function () { host.clear(id); }
        };
      },
      render: function (el, container) { host.render(containerId(container), resolve(el, 0)); }
    };

    function chart(kind) {
      return function (props) {
        var data = (props && props.data) || [];
        return createElement("div", {
          className: "chart chart-" + kind.toLowerCase(),
          "data-chart": kind,
          "data-points": String(data.length)
        });
      };
    }
    var Charts = {};
    ["Line", "Area", "Column", "Bar", "Pie", "Scatter", "DualAxes"].forEach(function (k) {
      Charts[k] = chart(k);
    });

    function format(args) {
      var parts = [];
      for (var i = 0; i < args.length; i++) {
        var a = args[i];
        if (a instanceof Error) parts.push(String(a));
        else if (typeof a === "object") {
          try { parts.push(JSON.stringify(a)); } catch (e) { parts.push(String(a)); }
        } else parts.push(String(a));
      }
      return parts.join(" ");
    }
    var console = {};
    ["log", "info", "warn", "error", "debug"].forEach(function (level) {
      console[level] = function () { host.log(level, format(arguments)); };
    });

    var document = {
      getElementById: function (id) {
        return host.hasContainer(id) ? { id: id, nodeType: 1 } : null;
      }
    };

    return { ui: React, dom: ReactDOM, charts: Charts, console: console, document: document };
  };
})()`
