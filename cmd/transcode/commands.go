package transcode

import (
	"bufio"
	"fmt"
	"io"
	"os"

	"github.com/ValentinKolb/dDoc/cmd/util"
	"github.com/ValentinKolb/dDoc/lib/codec"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	// EncodeCmd converts JSON or msgpack to the binary format
	EncodeCmd = &cobra.Command{
		Use:   "encode",
		Short: "Encode JSON or msgpack into the binary document format",
		Long: `Encode reads one JSON (or msgpack) value and writes it in the binary format.
JSON objects keep their key order. With --as document an object becomes a
document and an array of objects a document list; --as input produces input
documents. Nested objects under "_childDocuments_" become child documents.`,
		Args:    cobra.NoArgs,
		PreRunE: bindFlags,
		RunE:    runEncode,
	}

	// DecodeCmd converts the binary format to JSON or msgpack
	DecodeCmd = &cobra.Command{
		Use:     "decode",
		Short:   "Decode the binary document format into JSON or msgpack",
		Args:    cobra.NoArgs,
		PreRunE: bindFlags,
		RunE:    runDecode,
	}
)

func init() {
	for _, c := range []*cobra.Command{EncodeCmd, DecodeCmd} {
		c.Flags().String("in", "-", util.WrapString("Input file (- for stdin)"))
		c.Flags().String("out", "-", util.WrapString("Output file (- for stdout)"))
	}

	EncodeCmd.Flags().String("input", "json", util.WrapString("Format of the input (json, msgpack)"))
	EncodeCmd.Flags().String("as", "value", util.WrapString("How to encode objects (value, document, input)"))

	DecodeCmd.Flags().String("output", "json", util.WrapString("Format of the output (json, msgpack)"))
	DecodeCmd.Flags().Bool("pretty", false, util.WrapString("Indent JSON output"))
}

func bindFlags(cmd *cobra.Command, _ []string) error {
	return util.BindCommandFlags(cmd)
}

func runEncode(_ *cobra.Command, _ []string) error {
	in, closeIn, err := openInput(viper.GetString("in"))
	if err != nil {
		return err
	}
	defer closeIn()

	v, err := ReadValue(in, viper.GetString("input"))
	if err != nil {
		return err
	}

	switch as := viper.GetString("as"); as {
	case "value":
	case "document":
		v, err = AsDocuments(v)
	case "input":
		v, err = AsInputDocuments(v)
	default:
		err = fmt.Errorf("invalid --as %q (expected value, document or input)", as)
	}
	if err != nil {
		return err
	}

	return withOutput(viper.GetString("out"), func(w io.Writer) error {
		return codec.New().Marshal(w, v)
	})
}

func runDecode(_ *cobra.Command, _ []string) error {
	in, closeIn, err := openInput(viper.GetString("in"))
	if err != nil {
		return err
	}
	defer closeIn()

	v, err := codec.New().Unmarshal(bufio.NewReader(in))
	if err != nil {
		return err
	}
	return withOutput(viper.GetString("out"), func(w io.Writer) error {
		return WriteValue(w, v, viper.GetString("output"), viper.GetBool("pretty"))
	})
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

func openInput(path string) (io.Reader, func(), error) {
	if path == "-" || path == "" {
		return os.Stdin, func() {}, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	return f, func() { _ = f.Close() }, nil
}

func withOutput(path string, write func(io.Writer) error) error {
	if path == "-" || path == "" {
		return write(os.Stdout)
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
