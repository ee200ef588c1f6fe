// Package config loads the tool configuration and holds the CUE schemas
// used to validate the site catalog.
//
// Configuration is layered: built-in defaults, then a YAML file (the
// --config flag, or empire.yaml in the working directory when present),
// then environment variables. Command-line flags are applied last by the
// commands themselves.
//
//	content_api:
//	  url: http://localhost:1337
//	fixtures:
//	  dir: ../protein-empire/data/recipes
//	notifier:
//	  delay: 5s
//	  event_type: strapi-content-update
//	receiver:
//	  listen: ":8080"
//	ledger:
//	  path: empire.db
//
// Secrets are usually supplied through the environment: STRAPI_API_TOKEN,
// GITHUB_WEBHOOK_URL, GITHUB_WEBHOOK_TOKEN and EMPIRE_WEBHOOK_SECRET.
// STRAPI_URL, EMPIRE_FIXTURES_DIR, EMPIRE_LEDGER_PATH and LOG_LEVEL
// override their file counterparts.
//
// Struct constraints are checked with go-playground/validator. The site
// catalog is checked against the #Catalog CUE definition registered in
// SchemaRegistry.
package config
