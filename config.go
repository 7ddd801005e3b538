package crucible

import "go.uber.org/zap"

// Config configures a Compiler. Values are immutable: every With method
// returns a derived copy, so a Config can be shared and specialized freely.
type Config struct {
	workers    int
	logger     *zap.Logger
	middleware []FunctionMiddleware
}

// NewConfig returns the default configuration: sequential compilation, no
// instrumentation, no logging.
func NewConfig() *Config {
	return &Config{workers: 1, logger: zap.NewNop()}
}

func (c *Config) clone() *Config {
	out := *c
	out.middleware = append([]FunctionMiddleware(nil), c.middleware...)
	return &out
}

// WithWorkers sets how many functions are compiled concurrently. Values
// below 2 select the sequential path. The compiled output is byte-identical
// either way.
func (c *Config) WithWorkers(n int) *Config {
	out := c.clone()
	out.workers = n
	return out
}

// WithLogger sets the structured logger. Per-function timing is logged at
// debug level, the module summary at info level.
func (c *Config) WithLogger(l *zap.Logger) *Config {
	out := c.clone()
	out.logger = l
	return out
}

// WithMiddleware appends instrumentation middleware applied, in order, to
// every function body before translation.
func (c *Config) WithMiddleware(mw ...FunctionMiddleware) *Config {
	out := c.clone()
	out.middleware = append(out.middleware, mw...)
	return out
}
