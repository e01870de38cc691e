// Package plugin hosts extensions against the kernel.
//
// A plugin is anything implementing Plugin. Built-in plugins are Go values
// registered with Manager.Register; Lua plugins are discovered on disk by
// the Loader and wrapped in a LuaPlugin.
//
// # Lifecycle
//
// Each plugin is driven by a Host:
//
//	StateUnloaded -> Load() -> StateLoaded
//	StateLoaded -> Activate() -> StateActive (or StateError)
//	StateActive -> Deactivate() -> StateLoaded
//	StateLoaded -> Unload() -> StateUnloaded
//
// Every activation gets a fresh Context backed by its own disposable scope.
// Registrations made through the Context (actions, handlers, parts and
// icons) are added to that scope and reversed when the plugin deactivates,
// even if Activate failed halfway.
//
// # Plugin Structure
//
// Lua plugins can be either single-file or directory-based:
//
//	~/.config/extkernel/plugins/myplugin.lua
//
//	~/.config/extkernel/plugins/myplugin/
//	├── plugin.yaml      # Manifest (optional; plugin.json also works)
//	└── init.lua         # Entry point
//
// # Manifest
//
//	name: my-plugin
//	version: 1.0.0
//	main: init.lua
//	capabilities: [kernel.actions, kernel.parts]
//	actions:
//	  - id: my-plugin.greet
//	    title: Greet
//	configSchema:
//	  greeting:
//	    type: string
//	    default: hello
//
// A manifest without capabilities is granted "kernel", which implies every
// kernel surface but not "app".
//
// # Example Plugin
//
//	local ks = require("ks")
//	local greeting
//
//	function setup(config)
//	    greeting = config.greeting
//	end
//
//	function activate()
//	    ks.action.register{
//	        id = "my-plugin.greet",
//	        perform = function() ks.log.info(greeting) end,
//	    }
//	end
package plugin
