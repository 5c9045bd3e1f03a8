// Package main provides C-compatible functions for building a shared library.
// Build with: go build -buildmode=c-shared -o libbearoff.so ./pkg/capi
package main

/*
#include <stdlib.h>
#include <stdint.h>
*/
import "C"
import (
	"context"
	"sync"
	"unsafe"

	"github.com/bgbearoff/bearoff/internal/bearoff"
	"github.com/bgbearoff/bearoff/pkg/engine"
)

var (
	globalEngine *engine.Engine
	engineMutex  sync.RWMutex
	lastError    string
	errorMutex   sync.Mutex
)

// setError stores an error message for later retrieval.
func setError(err error) {
	errorMutex.Lock()
	defer errorMutex.Unlock()
	if err != nil {
		lastError = err.Error()
	} else {
		lastError = ""
	}
}

func goString(s *C.char) string {
	if s == nil {
		return ""
	}
	return C.GoString(s)
}

// call runs fn against the global engine and hands its JSON result to C.
func call(resultJSON **C.char, fn func(eng *engine.Engine) (string, error)) C.int {
	engineMutex.RLock()
	defer engineMutex.RUnlock()

	out, err := fn(globalEngine)
	setError(err)
	*resultJSON = C.CString(out)
	if err != nil {
		return -1
	}
	return 0
}

//export bearoff_version
func bearoff_version() *C.char {
	return C.CString(version)
}

//export bearoff_last_error
func bearoff_last_error() *C.char {
	errorMutex.Lock()
	defer errorMutex.Unlock()
	if lastError == "" {
		return nil
	}
	return C.CString(lastError)
}

// bearoff_init opens the given database files; NULL or empty paths are
// skipped. With heuristic != 0 and no one-sided file, an approximate
// table is generated.
//
//export bearoff_init
func bearoff_init(oneSided, twoSided, hypergammon *C.char, heuristic C.int) C.int {
	opts := engine.EngineOptions{
		OneSidedFile:    goString(oneSided),
		TwoSidedFile:    goString(twoSided),
		HypergammonFile: goString(hypergammon),
		Access:          bearoff.AccessInMemory,
	}
	if heuristic != 0 {
		opts.Heuristic = &bearoff.GenerateOptions{}
	}

	eng, err := engine.NewEngine(context.Background(), opts)
	if err != nil {
		setError(err)
		return -1
	}

	engineMutex.Lock()
	old := globalEngine
	globalEngine = eng
	engineMutex.Unlock()
	if old != nil {
		old.Close()
	}
	setError(nil)
	return 0
}

//export bearoff_shutdown
func bearoff_shutdown() {
	engineMutex.Lock()
	defer engineMutex.Unlock()
	if globalEngine != nil {
		globalEngine.Close()
		globalEngine = nil
	}
}

//export bearoff_info
func bearoff_info(resultJSON **C.char) C.int {
	return call(resultJSON, infoJSON)
}

//export bearoff_evaluate
func bearoff_evaluate(positionID *C.char, resultJSON **C.char) C.int {
	pid := goString(positionID)
	return call(resultJSON, func(eng *engine.Engine) (string, error) { return evaluateJSON(eng, pid) })
}

//export bearoff_distribution
func bearoff_distribution(positionID *C.char, side C.int, resultJSON **C.char) C.int {
	pid := goString(positionID)
	return call(resultJSON, func(eng *engine.Engine) (string, error) { return distributionJSON(eng, pid, int(side)) })
}

//export bearoff_cubeful
func bearoff_cubeful(positionID *C.char, resultJSON **C.char) C.int {
	pid := goString(positionID)
	return call(resultJSON, func(eng *engine.Engine) (string, error) { return cubefulJSON(eng, pid) })
}

//export bearoff_free_string
func bearoff_free_string(s *C.char) {
	if s != nil {
		C.free(unsafe.Pointer(s))
	}
}

func main() {}
