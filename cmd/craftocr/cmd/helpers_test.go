package cmd

import (
	"bytes"
	"image/color"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/craftocr/internal/onnx/mock"
	"github.com/MeKo-Tech/craftocr/internal/pipeline"
	"github.com/MeKo-Tech/craftocr/internal/recognizer"
	"github.com/MeKo-Tech/craftocr/internal/tensor"
	"github.com/MeKo-Tech/craftocr/internal/testutil"
)

// useMockPipeline swaps model loading for a 16x16 detector reporting one
// box at mask cells (2,2)-(5,5) and a recognizer that always reads "AB".
func useMockPipeline(t *testing.T) {
	t.Helper()
	old := newPipeline
	t.Cleanup(func() { newPipeline = old })

	newPipeline = func(cfg pipeline.Config) (*pipeline.Pipeline, error) {
		det := &mock.Model{
			In:  tensor.Descriptor{Name: "image", Shape: []int64{1, 16, 16, 3}, DType: tensor.Float32},
			Out: tensor.Descriptor{Name: "scores", Shape: []int64{1, -1, -1, 2}, DType: tensor.Float32},
			Fn: mock.Fixed(mock.Float32Output(
				mock.ScoreMap(8, 8, mock.Rect{X0: 2, Y0: 2, X1: 5, Y1: 5}), 1, 8, 8, 2)),
		}
		rec := &mock.Model{
			In:  tensor.Descriptor{Name: "patch", Shape: []int64{1, 1, -1, -1}, DType: tensor.Float32},
			Out: tensor.Descriptor{Name: "probs", Shape: []int64{1, -1, 3}, DType: tensor.Float32},
			Fn:  mock.Fixed(mock.Float32Output(mock.OneHotSequence([]int{0, 2, 1}, 3), 1, 3, 3)),
		}
		labels, err := recognizer.NewLabels([]string{"A", "B", "-"})
		if err != nil {
			return nil, err
		}
		return pipeline.New(det, rec, labels, cfg)
	}
}

// resetFlags restores defaults; cobra keeps flag values between Execute calls.
func resetFlags(cmds ...*cobra.Command) {
	for _, c := range cmds {
		c.Flags().VisitAll(func(f *pflag.Flag) {
			_ = f.Value.Set(f.DefValue)
			f.Changed = false
		})
	}
}

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	resetFlags(rootCmd, imageCmd, serveCmd, configShowCmd, configInitCmd)
	stdout, stderr := new(bytes.Buffer), new(bytes.Buffer)
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)
	if args == nil {
		args = []string{} // nil makes cobra fall back to os.Args
	}
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return stdout.String(), stderr.String(), err
}

func writePage(t *testing.T, dir, name string) string {
	t.Helper()
	return testutil.WriteImage(t, dir, name,
		testutil.CreateTestImage(32, 32, color.NRGBA{R: 128, G: 128, B: 128, A: 255}))
}

func requireNoErr(t *testing.T, err error, stderr string) {
	t.Helper()
	require.NoError(t, err, stderr)
}
