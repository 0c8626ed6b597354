package remuxer

import "github.com/ugparu/gomux"

// Option configures a Remuxer.
type Option func(*Remuxer)

// WithSourceOpener opens the input with opener instead of the format registry.
func WithSourceOpener(opener gomux.SourceOpener) Option {
	return func(r *Remuxer) {
		r.openSource = opener
	}
}

// WithSinkOpener opens the output with opener instead of the format registry.
func WithSinkOpener(opener gomux.SinkOpener) Option {
	return func(r *Remuxer) {
		r.openSink = opener
	}
}

// WithInputFormat forces the registered input format name.
func WithInputFormat(name string) Option {
	return func(r *Remuxer) {
		r.inputFormat = name
	}
}

// WithOutputFormat forces the registered output format name.
func WithOutputFormat(name string) Option {
	return func(r *Remuxer) {
		r.outputFormat = name
	}
}
