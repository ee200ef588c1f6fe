// Package contentapi is a thin client for the headless content store's REST
// API. It creates entities, looks them up by equality filters and maps
// failed responses onto the engine's error classes.
package contentapi
