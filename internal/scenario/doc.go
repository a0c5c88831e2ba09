// Package scenario loads and runs scripted workloads on the simulated
// uniprocessor.
//
// A scenario is a JSON document declaring named semaphores, locks and
// condition variables, and the threads that use them. Each thread runs a
// list of operations in order:
//
//	{
//	  "version": "v1.1.0",
//	  "locks": ["l"],
//	  "threads": [
//	    {"name": "low", "priority": 10, "ops": [
//	      {"op": "acquire", "target": "l"},
//	      {"op": "spawn", "target": "high"},
//	      {"op": "expect_priority", "value": 40},
//	      {"op": "release", "target": "l"}
//	    ]},
//	    {"name": "high", "priority": 40, "deferred": true, "ops": [
//	      {"op": "acquire", "target": "l"},
//	      {"op": "release", "target": "l"}
//	    ]}
//	  ]
//	}
//
// Threads without "deferred" are created before the machine starts;
// deferred threads are created by a "spawn" operation. The "version" field
// is a semantic version; files newer than SupportedVersion, or with a
// different major version, are rejected.
//
// Run returns the recorded trace, so tests and the uniproc CLI can check
// wake order, donation and the final priorities.
package scenario
