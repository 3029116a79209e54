package bcp

import (
	"net"
	"time"
)

// Default configuration values.
const (
	// DefaultPort is the port the external engine connects to.
	DefaultPort = 5050
	// defaultReadBufferSize is the size of a single socket read.
	defaultReadBufferSize = 4096
	// defaultMaxLineLength is the largest partial line kept while waiting for '\n' (1MB).
	defaultMaxLineLength = 1024 * 1024
	// defaultWriteTimeout bounds a single socket write.
	defaultWriteTimeout = 5 * time.Second
	// defaultFrameBudget is how long one Tick may spend dispatching.
	defaultFrameBudget = time.Millisecond
	// defaultTickInterval drives the drain loop when no tick source is given.
	defaultTickInterval = time.Second / 60
)

// options holds the configuration for a Server.
type options struct {
	codec   Codec
	logger  Logger
	metrics *Metrics

	readBufferSize int           // size of a single socket read
	maxLineLength  int           // maximum size of a partial line
	writeTimeout   time.Duration // deadline for a single write
}

// Option is a function that configures Server options.
type Option func(*options)

// checkOptions sets default values for unset server options.
func checkOptions(opts *options) {
	if opts.codec == nil {
		opts.codec = TextCodec{}
	}
	if opts.logger == nil {
		opts.logger = defaultLogger("bcp.server")
	}
	if opts.readBufferSize <= 0 {
		opts.readBufferSize = defaultReadBufferSize
	}
	if opts.maxLineLength <= 0 {
		opts.maxLineLength = defaultMaxLineLength
	}
	if opts.writeTimeout <= 0 {
		opts.writeTimeout = defaultWriteTimeout
	}
}

// CustomCodecOption returns an Option that replaces the BCP text codec.
func CustomCodecOption(codec Codec) Option {
	return func(o *options) {
		o.codec = codec
	}
}

// LoggerOption returns an Option that sets the logger.
// If not set, the default slog logger will be used.
func LoggerOption(logger Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// MetricsOption returns an Option that records transport metrics.
func MetricsOption(m *Metrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}

// ReadBufferSizeOption returns an Option that sets the size of a single read.
func ReadBufferSizeOption(size int) Option {
	return func(o *options) {
		o.readBufferSize = size
	}
}

// MaxLineLengthOption returns an Option that sets the maximum length of a
// line. A peer exceeding it is treated as an I/O failure.
func MaxLineLengthOption(size int) Option {
	return func(o *options) {
		o.maxLineLength = size
	}
}

// WriteTimeoutOption returns an Option that sets the deadline of a single write.
func WriteTimeoutOption(timeout time.Duration) Option {
	return func(o *options) {
		o.writeTimeout = timeout
	}
}

// interfaceOptions holds the configuration for an Interface.
type interfaceOptions struct {
	logger  Logger
	metrics *Metrics
	clock   Clock

	frameBudget  time.Duration
	tickInterval time.Duration
	ticks        <-chan time.Time

	controllerName    string
	controllerVersion string

	logReceived bool
	logSent     bool

	handlers      []MessageHandler
	serverOptions []Option
}

// InterfaceOption is a function that configures Interface options.
type InterfaceOption func(*interfaceOptions)

func checkInterfaceOptions(opts *interfaceOptions) {
	if opts.logger == nil {
		opts.logger = defaultLogger("bcp.interface")
	}
	if opts.clock == nil {
		opts.clock = systemClock{}
	}
	if opts.frameBudget <= 0 {
		opts.frameBudget = defaultFrameBudget
	}
	if opts.tickInterval <= 0 {
		opts.tickInterval = defaultTickInterval
	}
	if opts.controllerName == "" {
		opts.controllerName = DefaultControllerName
	}
	if opts.controllerVersion == "" {
		opts.controllerVersion = DefaultControllerVersion
	}
}

// InterfaceLoggerOption sets the logger used by the Interface, its handlers
// and its requesters. The Server gets it too unless LoggerOption is passed
// through ServerOptions.
func InterfaceLoggerOption(logger Logger) InterfaceOption {
	return func(o *interfaceOptions) {
		o.logger = logger
	}
}

// InterfaceMetricsOption records dispatch and transport metrics.
func InterfaceMetricsOption(m *Metrics) InterfaceOption {
	return func(o *interfaceOptions) {
		o.metrics = m
	}
}

// ClockOption sets the clock that measures the per-tick budget.
func ClockOption(c Clock) InterfaceOption {
	return func(o *interfaceOptions) {
		o.clock = c
	}
}

// FrameBudgetOption sets how long one Tick may spend dispatching messages.
func FrameBudgetOption(budget time.Duration) InterfaceOption {
	return func(o *interfaceOptions) {
		o.frameBudget = budget
	}
}

// TickIntervalOption sets the period of the drain loop's ticker.
func TickIntervalOption(interval time.Duration) InterfaceOption {
	return func(o *interfaceOptions) {
		o.tickInterval = interval
	}
}

// TickSourceOption makes the drain loop tick on values from ticks instead of
// its own ticker, e.g. a host's frame signal.
func TickSourceOption(ticks <-chan time.Time) InterfaceOption {
	return func(o *interfaceOptions) {
		o.ticks = ticks
	}
}

// ControllerOption sets the name and version reported in the hello reply.
func ControllerOption(name, version string) InterfaceOption {
	return func(o *interfaceOptions) {
		o.controllerName = name
		o.controllerVersion = version
	}
}

// LogReceivedOption logs every dispatched message at info level.
func LogReceivedOption(enabled bool) InterfaceOption {
	return func(o *interfaceOptions) {
		o.logReceived = enabled
	}
}

// LogSentOption logs every enqueued message at info level.
func LogSentOption(enabled bool) InterfaceOption {
	return func(o *interfaceOptions) {
		o.logSent = enabled
	}
}

// HandlerOption registers additional handlers for commands without a
// built-in handler. Built-in commands cannot be overridden.
func HandlerOption(handlers ...MessageHandler) InterfaceOption {
	return func(o *interfaceOptions) {
		o.handlers = append(o.handlers, handlers...)
	}
}

// ServerOptions passes options through to the Server.
func ServerOptions(opts ...Option) InterfaceOption {
	return func(o *interfaceOptions) {
		o.serverOptions = append(o.serverOptions, opts...)
	}
}

// LocalAddr returns the wildcard address for a port.
func LocalAddr(port int) *net.TCPAddr {
	return &net.TCPAddr{Port: port}
}
