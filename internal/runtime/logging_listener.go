package runtime

import (
	"fmt"

	loggingpkg "github.com/drblury/netshell/internal/runtime/logging"
)

// LoggingListener writes one log line per server lifecycle event.
type LoggingListener struct {
	log loggingpkg.ServiceLogger
}

// NewLoggingListener returns a listener writing to log. A nil log uses the
// logger of the server that dispatches the event; requests are only logged
// with an explicit log since they carry no server.
func NewLoggingListener(log loggingpkg.ServiceLogger) *LoggingListener {
	return &LoggingListener{log: log}
}

func (l *LoggingListener) logger(server *Server) loggingpkg.ServiceLogger {
	if l.log != nil {
		return l.log
	}
	if server != nil && server.Logger != nil {
		return server.Logger
	}
	return loggingpkg.NewNopServiceLogger()
}

func (l *LoggingListener) OnStart(server *Server) error {
	conf := server.Configuration()
	l.logger(server).Info(fmt.Sprintf("Server is listening %s:%d", conf.Address, conf.Port), loggingpkg.LogFields{
		"transport": conf.Transport,
	})
	return nil
}

func (l *LoggingListener) OnConnect(server *Server, client *Client) error {
	l.logger(server).Info(fmt.Sprintf("Client %d connected", client.ID()), loggingpkg.LogFields{
		"client_id": client.ID(),
	})
	return nil
}

func (l *LoggingListener) OnClose(server *Server, client *Client) error {
	l.logger(server).Info(fmt.Sprintf("Client %d closed connection", client.ID()), loggingpkg.LogFields{
		"client_id": client.ID(),
	})
	return nil
}

func (l *LoggingListener) OnShutdown(server *Server) error {
	l.logger(server).Info("Server shutdown", nil)
	return nil
}

// OnRequest logs the request and leaves the response to other listeners.
func (l *LoggingListener) OnRequest(req *Request) (*Response, error) {
	if l.log == nil {
		return nil, nil
	}
	l.log.Info(fmt.Sprintf("Client %d requested %s %s", req.ClientID, req.Method, req.URI), loggingpkg.LogFields{
		"client_id": req.ClientID,
		"method":    req.Method,
		"uri":       req.URI,
	})
	return nil, nil
}
