// Package pool
// Author: momentics <momentics@gmail.com>
//
// Typed object pools for hioload-httpd. The compression decorator
// recycles its encoders and scratch buffers through them.
package pool
