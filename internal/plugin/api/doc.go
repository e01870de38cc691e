// Package api provides the Lua modules through which plugins reach the
// extension kernel.
//
// Plugins access the kernel through the "ks" namespace:
//
//   - ks.action: register actions and drive them
//   - ks.event: subscribe to exported host events
//   - ks.part: open panels and control their lifecycle
//   - ks.image: register icons by URL or markup
//   - ks.app: read the current user, workspace and endpoints
//   - ks.log: write to the host log
//
// Each module implements Module and declares the capability it needs. The
// Registry only injects modules the plugin's PermissionChecker grants.
//
// Every registration a module makes is handed to Context.Track, which adds
// it to the plugin's scope so that unloading the plugin reverses it.
//
// From Lua:
//
//	local ks = require("ks")
//
//	local count = 0
//	ks.action.register{
//	    id = "demo.count",
//	    update = function(st) st.text = "Count " .. count end,
//	    perform = function(st) count = count + 1 end,
//	}
//
//	ks.event.on("editor.opened", function(e)
//	    ks.log.info("opened", { file = e.file })
//	end)
package api
