// Package config loads mcphost settings.
//
// Configuration is YAML. Values may reference environment variables as
// ${VAR_NAME}; a .env file in the working directory is loaded first by the
// CLI. Durations use time.ParseDuration syntax.
//
//	servers:
//	  - id: file_system
//	    command: mcphost
//	    args: [serve, filesys, --root, /srv/data]
//	  - id: wl_db
//	    command: python
//	    args: [servers/wl_server.py]
//	    env:
//	      DB_DSN: "${WL_DB_DSN}"
//
//	reasoning:
//	  provider: azure-openai
//	  endpoint: "${AZURE_OPENAI_ENDPOINT}"
//	  api_key: "${AZURE_OPENAI_KEY}"
//	  deployment: gpt-4o
//	  temperature: 0.2
//	  max_tokens: 1024
//	  timeout: 2m
//
//	prompts:
//	  decision: "..."
//	  synthesis_instruction: "..."
//
//	dispatch:
//	  tool_timeout: 60s
//	  catalog_timeout: 10s
//	  connect_timeout: 30s
//	  max_parallel_connects: 4
//
//	transcript:
//	  path: /var/lib/mcphost/transcript.db
//	  disabled: false
//
//	logging:
//	  level: info   # debug, info, warn, error
//	  format: text  # text, json
//
// The file is found at $MCPHOST_CONFIG, else mcphost/mcphost.yaml under the
// user config directory. A missing file yields defaults with no servers.
package config
