package version

import (
	"runtime"
	"strings"
	"testing"
)

func TestGetInfo(t *testing.T) {
	info := GetInfo()
	if info.GoVersion != runtime.Version() {
		t.Fatalf("GoVersion = %q, want %q", info.GoVersion, runtime.Version())
	}
	if info.Platform != runtime.GOOS+"/"+runtime.GOARCH {
		t.Fatalf("Platform = %q", info.Platform)
	}

	s := info.String("closure-server")
	if !strings.HasPrefix(s, "closure-server "+Version+" ") {
		t.Fatalf("String() = %q", s)
	}
}
