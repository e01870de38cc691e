// Package lua runs script plugins on gopher-lua.
//
// A State wraps one *lua.LState behind a mutex. Only the base, table,
// string and math libraries are opened; io, os, debug and package are not,
// and dofile, loadfile, load and loadstring are removed. require only
// resolves the safe built-ins and modules preloaded under "ks".
//
//	st, err := lua.NewState(lua.WithExecutionTimeout(time.Second))
//	if err != nil {
//		return err
//	}
//	defer st.Close()
//
//	if err := st.DoFile(ctx, "init.lua"); err != nil {
//		return err
//	}
//	_, err = st.CallGlobal(ctx, "activate")
//
// Every entry point takes a context. Its deadline, or the configured
// execution timeout, aborts the running script. Go functions called from
// Lua receive that context through L.Context(); passing it back into
// CallFunction re-enters the state without locking, so a script callback
// may trigger another callback of the same plugin.
package lua
