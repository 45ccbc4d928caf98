package netshell

import (
	"log/slog"

	runtimepkg "github.com/drblury/netshell/internal/runtime"
	"github.com/drblury/netshell/internal/runtime/bridge"
	configpkg "github.com/drblury/netshell/internal/runtime/config"
	errspkg "github.com/drblury/netshell/internal/runtime/errors"
	idspkg "github.com/drblury/netshell/internal/runtime/ids"
	jsoncodec "github.com/drblury/netshell/internal/runtime/jsoncodec"
	loggingpkg "github.com/drblury/netshell/internal/runtime/logging"
	"github.com/drblury/netshell/transport"
)

type (
	Config             = configpkg.Config
	DispatchMode       = configpkg.DispatchMode
	Server             = runtimepkg.Server
	ServerDependencies = runtimepkg.ServerDependencies
	HTTPServer         = runtimepkg.HTTPServer
	HTTPServerOption   = runtimepkg.HTTPServerOption
	Client             = runtimepkg.Client
	ClientInfo         = runtimepkg.ClientInfo
	ServerStats        = runtimepkg.ServerStats
	HandlerFactory     = runtimepkg.HandlerFactory
	HandlerFactoryFunc = runtimepkg.HandlerFactoryFunc

	// Listener capabilities. A listener implements any subset of them.
	StartListener    = runtimepkg.StartListener
	ConnectListener  = runtimepkg.ConnectListener
	ReceiveListener  = runtimepkg.ReceiveListener
	CloseListener    = runtimepkg.CloseListener
	ShutdownListener = runtimepkg.ShutdownListener
	RequestListener  = runtimepkg.RequestListener

	StartFunc    = runtimepkg.StartFunc
	ConnectFunc  = runtimepkg.ConnectFunc
	ReceiveFunc  = runtimepkg.ReceiveFunc
	CloseFunc    = runtimepkg.CloseFunc
	ShutdownFunc = runtimepkg.ShutdownFunc
	RequestFunc  = runtimepkg.RequestFunc

	ListenerRegistry = runtimepkg.ListenerRegistry
	ClientRegistry   = runtimepkg.ClientRegistry

	// Built-in listeners
	LoggingListener           = runtimepkg.LoggingListener
	MetricsListener           = runtimepkg.MetricsListener
	ConnectionMetricsSnapshot = runtimepkg.ConnectionMetricsSnapshot
	BridgeListener            = runtimepkg.BridgeListener
	LifecycleEvent            = runtimepkg.LifecycleEvent
	BridgeFactory             = bridge.Factory

	// Request pipeline
	Request               = runtimepkg.Request
	Response              = runtimepkg.Response
	Handler               = runtimepkg.Handler
	HandlerFunc           = runtimepkg.HandlerFunc
	Middleware            = runtimepkg.Middleware
	MiddlewareFunc        = runtimepkg.MiddlewareFunc
	Next                  = runtimepkg.Next
	Pipe                  = runtimepkg.Pipe
	ErrorMiddleware       = runtimepkg.ErrorMiddleware
	ErrorMiddlewareOption = runtimepkg.ErrorMiddlewareOption
	RequestMetrics        = runtimepkg.RequestMetrics
	HTTPError             = runtimepkg.HTTPError
	StatusError           = runtimepkg.StatusError
	Warning               = runtimepkg.Warning
	WarningError          = runtimepkg.WarningError
	Encoding              = runtimepkg.Encoding

	LogFields     = loggingpkg.LogFields
	ServiceLogger = loggingpkg.ServiceLogger

	ClientError           = errspkg.ClientError
	ServerError           = errspkg.ServerError
	ConfigValidationError = errspkg.ConfigValidationError

	// Transport contract
	EventKind             = transport.EventKind
	TransportHandler      = transport.Handler
	TransportBuilder      = transport.Builder
	TransportConfig       = transport.Config
	TransportRegistry     = transport.Registry
	TransportCapabilities = transport.Capabilities
)

const (
	EventStart    = transport.EventStart
	EventConnect  = transport.EventConnect
	EventReceive  = transport.EventReceive
	EventClose    = transport.EventClose
	EventShutdown = transport.EventShutdown
	EventRequest  = transport.EventRequest

	DispatchPolling    = configpkg.DispatchPolling
	DispatchFixed      = configpkg.DispatchFixed
	DispatchPreemptive = configpkg.DispatchPreemptive
	DispatchIP         = configpkg.DispatchIP

	EncodingIdentity = runtimepkg.EncodingIdentity
	EncodingGzip     = runtimepkg.EncodingGzip
	EncodingDeflate  = runtimepkg.EncodingDeflate

	RequestIDHeader = runtimepkg.RequestIDHeader
)

var (
	NewConfig             = configpkg.New
	ConfigFromEnv         = configpkg.FromEnv
	ValidateConfig        = configpkg.ValidateConfig
	NewServer             = runtimepkg.NewServer
	NewHTTPServer         = runtimepkg.NewHTTPServer
	DefaultHandlerFactory = runtimepkg.DefaultHandlerFactory
	ListenerKinds         = runtimepkg.ListenerKinds
	NewListenerRegistry   = runtimepkg.NewListenerRegistry
	NewClientRegistry     = runtimepkg.NewClientRegistry
	WithMiddlewares       = runtimepkg.WithMiddlewares
	WithErrorMiddleware   = runtimepkg.WithErrorMiddleware

	NewLoggingListener          = runtimepkg.NewLoggingListener
	NewMetricsListener          = runtimepkg.NewMetricsListener
	NewBridgeListener           = runtimepkg.NewBridgeListener
	NewBridgeListenerFromConfig = runtimepkg.NewBridgeListenerFromConfig
	IsBridgeDisabled            = runtimepkg.IsBridgeDisabled
	BridgeSystems               = bridge.Systems

	NewRequest            = runtimepkg.NewRequest
	NewResponse           = runtimepkg.NewResponse
	Empty                 = runtimepkg.Empty
	Text                  = runtimepkg.Text
	HTML                  = runtimepkg.HTML
	JSON                  = runtimepkg.JSON
	XML                   = runtimepkg.XML
	Proto                 = runtimepkg.Proto
	NewNext               = runtimepkg.NewNext
	NewPipe               = runtimepkg.NewPipe
	NewErrorMiddleware    = runtimepkg.NewErrorMiddleware
	WithErrorTranslator   = runtimepkg.WithErrorTranslator
	WithWarningLevel      = runtimepkg.WithWarningLevel
	NewStatusError        = runtimepkg.NewStatusError
	NotFoundError         = runtimepkg.NotFoundError
	MethodNotAllowedError = runtimepkg.MethodNotAllowedError
	NegotiateEncoding     = runtimepkg.NegotiateEncoding
	DefaultMiddlewares    = runtimepkg.DefaultMiddlewares
	RequestIDMiddleware   = runtimepkg.RequestIDMiddleware
	TracerMiddleware      = runtimepkg.TracerMiddleware
	MetricsMiddleware     = runtimepkg.MetricsMiddleware
	LogRequestsMiddleware = runtimepkg.LogRequestsMiddleware
	NewRequestMetrics     = runtimepkg.NewRequestMetrics

	RegisterTransport = transport.Register
	BuildTransport    = transport.Build
	TransportNames    = transport.Names

	Marshal       = jsoncodec.Marshal
	MarshalIndent = jsoncodec.MarshalIndent
	Unmarshal     = jsoncodec.Unmarshal
	Encode        = jsoncodec.Encode
	Decode        = jsoncodec.Decode

	ErrClientNotFound            = errspkg.ErrClientNotFound
	ErrSendFailed                = errspkg.ErrSendFailed
	ErrWaitFailed                = errspkg.ErrWaitFailed
	ErrClientOperationFailed     = errspkg.ErrClientOperationFailed
	ErrIdleServer                = errspkg.ErrIdleServer
	ErrAlreadyStarted            = errspkg.ErrAlreadyStarted
	ErrConfigRequired            = errspkg.ErrConfigRequired
	ErrHandlerFactoryRequired    = errspkg.ErrHandlerFactoryRequired
	ErrEmptyPipeline             = errspkg.ErrEmptyPipeline
	ErrInvalidMiddlewareResponse = errspkg.ErrInvalidMiddlewareResponse
	ErrResponseComplete          = errspkg.ErrResponseComplete
	ErrInvalidConfiguration      = errspkg.ErrInvalidConfiguration
	ErrUnknownTransport          = transport.ErrUnknownTransport
	ErrUnsupportedSetting        = transport.ErrUnsupportedSetting
	ErrBridgeDisabled            = bridge.ErrBridgeDisabled

	NewSlogServiceLogger      = loggingpkg.NewSlogServiceLogger
	NewZapServiceLogger       = loggingpkg.NewZapServiceLogger
	NewWatermillServiceLogger = loggingpkg.NewWatermillServiceLogger
	NewNopServiceLogger       = loggingpkg.NewNopServiceLogger

	CreateULID = idspkg.CreateULID
)

// NewDefaultHTTPServer returns an HTTPServer with the request id, tracing and
// request logging middlewares installed, logging to log.
func NewDefaultHTTPServer(conf *Config, log *slog.Logger) (*HTTPServer, error) {
	var logger ServiceLogger
	if log != nil {
		logger = loggingpkg.NewSlogServiceLogger(log)
	}
	return runtimepkg.NewHTTPServer(conf, runtimepkg.ServerDependencies{Logger: logger},
		runtimepkg.WithMiddlewares(runtimepkg.DefaultMiddlewares(logger, nil)...),
	)
}
