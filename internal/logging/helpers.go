package logging

// Package-level convenience helpers, one pair per high-traffic category.
// Info-level helpers carry the category name; Debug variants are for
// payload-sized detail that only matters when chasing a specific problem.

// API logs at info level to the api category
func API(format string, args ...interface{}) {
	Get(CategoryAPI).Info(format, args...)
}

// APIDebug logs at debug level to the api category
func APIDebug(format string, args ...interface{}) {
	Get(CategoryAPI).Debug(format, args...)
}

// APIError logs at error level to the api category
func APIError(format string, args ...interface{}) {
	Get(CategoryAPI).Error(format, args...)
}

// Embedding logs at info level to the embedding category
func Embedding(format string, args ...interface{}) {
	Get(CategoryEmbedding).Info(format, args...)
}

// EmbeddingDebug logs at debug level to the embedding category
func EmbeddingDebug(format string, args ...interface{}) {
	Get(CategoryEmbedding).Debug(format, args...)
}

// Catalog logs at info level to the catalog category
func Catalog(format string, args ...interface{}) {
	Get(CategoryCatalog).Info(format, args...)
}

// CatalogDebug logs at debug level to the catalog category
func CatalogDebug(format string, args ...interface{}) {
	Get(CategoryCatalog).Debug(format, args...)
}

// Triage logs at info level to the triage category
func Triage(format string, args ...interface{}) {
	Get(CategoryTriage).Info(format, args...)
}

// TriageDebug logs at debug level to the triage category
func TriageDebug(format string, args ...interface{}) {
	Get(CategoryTriage).Debug(format, args...)
}

// Resolver logs at info level to the resolver category
func Resolver(format string, args ...interface{}) {
	Get(CategoryResolver).Info(format, args...)
}

// ResolverDebug logs at debug level to the resolver category
func ResolverDebug(format string, args ...interface{}) {
	Get(CategoryResolver).Debug(format, args...)
}

// Analyst logs at info level to the analyst category
func Analyst(format string, args ...interface{}) {
	Get(CategoryAnalyst).Info(format, args...)
}

// AnalystDebug logs at debug level to the analyst category
func AnalystDebug(format string, args ...interface{}) {
	Get(CategoryAnalyst).Debug(format, args...)
}

// Assembly logs at info level to the assembly category
func Assembly(format string, args ...interface{}) {
	Get(CategoryAssembly).Info(format, args...)
}

// AssemblyDebug logs at debug level to the assembly category
func AssemblyDebug(format string, args ...interface{}) {
	Get(CategoryAssembly).Debug(format, args...)
}

// AssemblyWarn logs at warn level to the assembly category
func AssemblyWarn(format string, args ...interface{}) {
	Get(CategoryAssembly).Warn(format, args...)
}

// Validation logs at info level to the validation category
func Validation(format string, args ...interface{}) {
	Get(CategoryValidation).Info(format, args...)
}

// ValidationWarn logs at warn level to the validation category
func ValidationWarn(format string, args ...interface{}) {
	Get(CategoryValidation).Warn(format, args...)
}
