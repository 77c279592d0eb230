package prediction

import "fmt"

type InputError struct {
	Message string
}

func (e *InputError) Error() string { return e.Message }

type DecodeError struct {
	Path string
	Err  error
}

func (e *DecodeError) Error() string { return fmt.Sprintf("decode %s: %v", e.Path, e.Err) }
func (e *DecodeError) Unwrap() error { return e.Err }

type ResourceError struct {
	Model string
	Err   error
}

func (e *ResourceError) Error() string { return fmt.Sprintf("model %s: %v", e.Model, e.Err) }
func (e *ResourceError) Unwrap() error { return e.Err }
