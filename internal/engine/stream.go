package engine

import "os"

type streamKind int

const (
	streamInherit streamKind = iota
	streamNull
	streamPiped
	streamFile
)

// Stream says where a command's stdin or stdout is connected.
type Stream struct {
	kind streamKind
	file *os.File
}

// Inherit connects the stream to the shell's terminal.
func Inherit() Stream { return Stream{kind: streamInherit} }

// Null connects the stream to the null device.
func Null() Stream { return Stream{kind: streamNull} }

// Piped asks for a fresh pipe whose read end is returned in the Result.
// It is only meaningful for stdout.
func Piped() Stream { return Stream{kind: streamPiped} }

// FileStream hands f to the command. The command takes ownership of f and
// closes it once the child has been started or the stream is discarded. A
// nil f is the same as Null.
func FileStream(f *os.File) Stream {
	if f == nil {
		return Null()
	}
	return Stream{kind: streamFile, file: f}
}

// Close releases a file stream. Other kinds own nothing.
func (s Stream) Close() error {
	if s.kind == streamFile {
		return s.file.Close()
	}
	return nil
}

func (s Stream) String() string {
	switch s.kind {
	case streamInherit:
		return "inherit"
	case streamNull:
		return "null"
	case streamPiped:
		return "piped"
	}
	return "file:" + s.file.Name()
}

func closeStreams(streams ...Stream) {
	for _, s := range streams {
		s.Close()
	}
}
