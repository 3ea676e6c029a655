package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/acolita/basic-fileio/internal/device"
	"github.com/acolita/basic-fileio/internal/ioerr"
	"github.com/acolita/basic-fileio/internal/session"
)

// errUsage reports a malformed command line.
var errUsage = errors.New("usage: basic-fileio [flags] files [MASK] | type SPEC | copy SRC DST | kill SPEC | name OLD NEW | mkdir SPEC | rmdir SPEC | chdir SPEC | shell")

// run executes one command. The shell command reads further commands from
// in, one per line.
func run(sess *session.Session, args []string, in io.Reader, out io.Writer) error {
	if len(args) == 0 {
		return errUsage
	}
	if strings.EqualFold(args[0], "shell") {
		return shell(sess, in, out)
	}
	return describe(execute(sess, args, out))
}

func execute(sess *session.Session, args []string, out io.Writer) error {
	reg := sess.Devices()
	need := func(n int) error {
		if len(args) != n+1 {
			return errUsage
		}
		return nil
	}
	switch strings.ToLower(args[0]) {
	case "files":
		if len(args) > 2 {
			return errUsage
		}
		if len(args) == 2 {
			return reg.Files(&args[1])
		}
		return reg.Files(nil)
	case "type":
		if err := need(1); err != nil {
			return err
		}
		return typeFile(sess, args[1], out)
	case "copy":
		if err := need(2); err != nil {
			return err
		}
		return copyFile(sess, args[1], args[2])
	case "kill":
		if err := need(1); err != nil {
			return err
		}
		return reg.Kill(args[1])
	case "name":
		if err := need(2); err != nil {
			return err
		}
		return reg.Rename(args[1], args[2])
	case "mkdir":
		if err := need(1); err != nil {
			return err
		}
		return reg.Mkdir(args[1])
	case "rmdir":
		if err := need(1); err != nil {
			return err
		}
		return reg.Rmdir(args[1])
	case "chdir":
		if err := need(1); err != nil {
			return err
		}
		return reg.Chdir(args[1])
	case "reset":
		return sess.Reset()
	}
	return errUsage
}

// describe renders a BASIC error the way the interpreter reports it.
func describe(err error) error {
	if k := ioerr.KindOf(err); k != ioerr.KindUnknown {
		return fmt.Errorf("%s (%d)", k, k.Code())
	}
	return err
}

// typeFile copies a file to out.
func typeFile(sess *session.Session, spec string, out io.Writer) error {
	h, err := sess.Files().OpenNativeOrBasic(spec, device.Data, device.Input)
	if err != nil {
		return err
	}
	defer h.Close()
	return drain(h, func(b []byte) error {
		_, err := out.Write(b)
		return err
	})
}

// copyFile copies src to dst; either may be a host path or a BASIC spec.
func copyFile(sess *session.Session, src, dst string) error {
	tbl := sess.Files()
	in, err := tbl.OpenNativeOrBasic(src, device.Data, device.Input)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := tbl.OpenNativeOrBasic(dst, device.Data, device.Output)
	if err != nil {
		return err
	}
	err = drain(in, func(b []byte) error { return out.WriteText(string(b)) })
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	return err
}

// drain reads h to its end in blocks.
func drain(h device.Handle, emit func([]byte) error) error {
	for {
		b, err := h.Input(512)
		if len(b) > 0 {
			if werr := emit(b); werr != nil {
				return werr
			}
		}
		if errors.Is(err, ioerr.InputPastEnd) {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

// shell runs commands from in until end of input or QUIT.
func shell(sess *session.Session, in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	fmt.Fprint(out, "Ok\r\n")
	for scanner.Scan() {
		args := strings.Fields(scanner.Text())
		if len(args) == 0 {
			continue
		}
		if strings.EqualFold(args[0], "quit") || strings.EqualFold(args[0], "system") {
			return nil
		}
		if err := describe(execute(sess, args, out)); err != nil {
			fmt.Fprintf(out, "%v\r\n", err)
		}
		fmt.Fprint(out, "Ok\r\n")
	}
	return scanner.Err()
}
