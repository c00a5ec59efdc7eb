/*
Package config loads the agent configuration with viper.

Values come from three layers, later ones winning:

 1. Defaults registered by SetDefaults (see Default)
 2. A YAML file passed to New
 3. LOOKOUT_ environment variables, with dots replaced by underscores
    (LOOKOUT_AUDIT_DISABLE=false)

Load decodes the merged view into Config and runs Validate. Watch hooks
viper's file watcher and hands every valid reload to a callback; the
agent uses it to re-initialise subscribers and reconfigure publishers.

# Example

	data_dir: /var/lib/lookout
	log:
	  level: info
	events:
	  cooldown: 200ms
	  expiry: 24h
	file_paths:
	  etc:
	    - /etc/%%
	  web:
	    - /var/www/
	exclude_paths:
	  etc:
	    - /etc/ssh/%%
	audit:
	  disable: false
	  allow_config: true
	  allow_process_events: true
	  allow_sockets: true
	  allow_fim_events: true
	  fim:
	    include:
	      - /etc/%%
	    exclude:
	      - /etc/shadow
	    show_accesses: false
	process:
	  enable: true
	  interval: 10s
	server:
	  http_addr: 127.0.0.1:9090
	  grpc_addr: 127.0.0.1:9091

Category names under file_paths and exclude_paths are case-insensitive;
viper lowercases them.
*/
package config
