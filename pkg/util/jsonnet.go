package util

import (
	"io"
	"os"
	"strings"

	"github.com/google/go-jsonnet"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// EvaluateJsonnetFile reads a Jsonnet file (or "-" for stdin), evaluates
// it with every environment variable of the current process exposed
// through std.extVar(), and returns the resulting JSON document as a
// string. Callers unmarshal that string into whatever shape their
// configuration takes; this function only owns the Jsonnet half.
func EvaluateJsonnetFile(path string) (string, error) {
	var jsonnetInput []byte
	var err error
	if path == "-" {
		jsonnetInput, err = io.ReadAll(os.Stdin)
	} else {
		jsonnetInput, err = os.ReadFile(path)
	}
	if err != nil {
		return "", StatusWrapf(err, "failed to read file contents")
	}

	vm := jsonnet.MakeVM()
	for _, env := range os.Environ() {
		parts := strings.SplitN(env, "=", 2)
		if len(parts) != 2 {
			return "", status.Errorf(codes.InvalidArgument, "invalid environment variable: %#v", env)
		}
		vm.ExtVar(parts[0], parts[1])
	}

	jsonnetOutput, err := vm.EvaluateSnippet(path, string(jsonnetInput))
	if err != nil {
		return "", StatusWrapf(err, "failed to evaluate configuration")
	}
	return jsonnetOutput, nil
}
