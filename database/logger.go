package database

import (
	"fmt"
	"io"
	"os"
)

// Logger receives the DDLs applied by RunDDLs and the output of a dry run.
type Logger interface {
	Printf(format string, v ...any)
	Println(v ...any)
}

// WriterLogger writes to W, or to stdout when W is nil.
type WriterLogger struct {
	W io.Writer
}

func (l WriterLogger) writer() io.Writer {
	if l.W == nil {
		return os.Stdout
	}
	return l.W
}

func (l WriterLogger) Printf(format string, v ...any) {
	fmt.Fprintf(l.writer(), format, v...)
}

func (l WriterLogger) Println(v ...any) {
	fmt.Fprintln(l.writer(), v...)
}

type NullLogger struct{}

func (n NullLogger) Printf(format string, v ...any) {}
func (n NullLogger) Println(v ...any)               {}
