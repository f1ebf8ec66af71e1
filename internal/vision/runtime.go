package vision

import (
	"fmt"
	"runtime"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

var (
	runtimeMu   sync.Mutex
	runtimeUp   bool
	runtimeOnce sync.Once
	runtimeErr  error
)

// initRuntime initialises the ONNX Runtime environment once per process.
func initRuntime(libPath string) error {
	runtimeOnce.Do(func() {
		if libPath == "" {
			libPath = defaultLibPath()
		}
		ort.SetSharedLibraryPath(libPath)
		if err := ort.InitializeEnvironment(); err != nil {
			runtimeErr = fmt.Errorf("init onnx runtime (%s): %w", libPath, err)
			return
		}
		runtimeMu.Lock()
		runtimeUp = true
		runtimeMu.Unlock()
	})
	return runtimeErr
}

// DestroyRuntime releases the ONNX Runtime environment. Call it after every
// Oracle has been closed.
func DestroyRuntime() {
	runtimeMu.Lock()
	defer runtimeMu.Unlock()
	if runtimeUp {
		_ = ort.DestroyEnvironment()
		runtimeUp = false
	}
}

func defaultLibPath() string {
	switch runtime.GOOS {
	case "linux":
		return "libonnxruntime.so"
	case "darwin":
		return "libonnxruntime.dylib"
	default:
		return "onnxruntime.dll"
	}
}
