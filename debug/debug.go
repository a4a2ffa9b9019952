package debug

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
)

type debug struct {
	Sync    bool
	Persist bool
	Log     bool
	RPC     bool
}

var d *debug

func init() {
	d = &debug{}
	d.Sync = boolEnv("DOCSYNC_DEBUG_SYNC")
	d.Persist = boolEnv("DOCSYNC_DEBUG_PERSIST")
	d.Log = boolEnv("DOCSYNC_DEBUG_LOG")
	d.RPC = boolEnv("DOCSYNC_DEBUG_RPC")
}

func boolEnv(v string) bool {
	x := os.Getenv(v)
	if x == "" {
		return false
	}
	b, _ := strconv.ParseBool(x)
	return b
}

func Sync() bool {
	return d.Sync
}
func Persist() bool {
	return d.Persist
}
func Log() bool {
	return d.Log
}
func RPC() bool {
	return d.RPC
}

func LogAny(v any) {
	d, err := json.Marshal(v)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", v)
		return
	}
	os.Stderr.Write(d)
}
