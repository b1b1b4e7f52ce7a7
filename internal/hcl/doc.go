// Package hcl provides the HCL implementation of config.Loader. A settings
// file looks like:
//
//	engine {
//	  url      = env("GRASP_ENGINE_URL", "http://localhost:8080")
//	  pipeline = "transpiler"
//	}
//
//	run {
//	  poll_interval = "500ms"
//	  transactional = true
//	  cache_dir     = "test/.grasp_cache"
//	  program_dir   = "transpiler"
//	  grammar       = "grammar/grasp.lark"
//	}
//
// Every attribute and block is optional. Relative directories are resolved
// against the directory of the settings file.
package hcl
