package config

// Config is a configuration object for a LookML generation run.
type Config struct {
	// AppListing is the path to the application registry YAML.
	AppListing string
	// Catalog is the path to the dataset catalog YAML, mapping each
	// dataset's views to their source tables.
	Catalog string
	// CustomNamespaces is the path to the declared namespaces YAML.
	CustomNamespaces string
	// Disallowlist is the path to the YAML list of namespace globs to skip.
	Disallowlist string
	// MetricHub is the path to the metric-hub definitions directory.
	MetricHub string
	// Parallelism caps the number of namespaces generated concurrently.
	// Zero means one worker per CPU.
	Parallelism int
}
