// Package config provides configuration management for the render server.
//
// Configuration is loaded from environment variables and validated on startup.
// All configuration options have sensible defaults for development.
//
// Example usage:
//
//	cfg, err := config.Load()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg)
//
// Default template values can be kept in a YAML file named by
// DEFAULT_VALUES_FILE:
//
//	meta:
//	  title: My blog
//	  author: Ada
package config
