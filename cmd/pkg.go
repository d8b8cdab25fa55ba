/*
Shellcache runs an offline-capable caching gateway in front of the origin web server of a
web application shell. The shell's resource manifest names every resource and its content
fingerprint. The gateway stages the core shell files of each deployed version, reconciles
its durable cache against the manifest when the version activates, and then serves
manifest resources cache-first (the entry document network-first) while everything else
passes through to the origin.

Usage:

	shellcache [global flags] command [command flags]

Commands:

	serve
		Runs the gateway.
	reconcile
		Installs and activates the manifest version against the caches, then exits. Use
		this to prime a cache before the gateway runs.
	sync
		Fetches every manifest resource missing from the live cache, then exits.
	list
		Lists the live cache.
	version
		Displays the version.

Global flags:

	--log-level string
		Log level. Defaults to 'error'.
	--config-file string
		A configuration file. Command line values override file values.
	--cache-path string
		Path for the durable caches. Defaults to '/var/lib/shellcache'.
	--store-type string
		Cache storage backend: fs, leveldb, or memory. Defaults to 'fs'.
	--log-file string
		Log to a file rather than the console.
	--manifest-file string
		The resource manifest of the deployed version.
	--origin string
		The origin web server URL.
*/
package main
