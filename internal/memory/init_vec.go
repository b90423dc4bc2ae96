//go:build sqlite_vec && cgo

package memory

import (
	vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
)

func init() {
	// The default build gets its memory_vec ANN mirror from vec_compat.go's
	// pure-Go vec0 module, which needs no cgo. Builds that opt into the
	// cgo sqlite driver instead can additionally register the real
	// sqlite-vec extension; vec.Auto() makes it auto-loadable once a
	// connection opens, giving those builds the genuine ANN index instead
	// of vec_compat's in-memory linear-scan stand-in.
	vec.Auto()
}
