package models

// ModelRegistry lists the models handled by --auto-migrate, parents first.
var ModelRegistry = []interface{}{
	&WaitlistEntry{},
	&WaitlistTool{},
}
