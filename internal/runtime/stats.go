package runtime

import (
	"time"

	"github.com/spf13/cast"
)

// ServerStats is the typed view of the transport's server statistics. Raw
// keeps the transport map for keys that have no field.
type ServerStats struct {
	StartTime   time.Time      `json:"start_time"`
	Connections int            `json:"connection_num"`
	Accepted    int            `json:"accept_count"`
	Closed      int            `json:"close_count"`
	Requests    int            `json:"request_count"`
	Raw         map[string]any `json:"raw,omitempty"`
}

// ClientInfo is the typed view of the transport's connection details.
type ClientInfo struct {
	ID          int            `json:"id"`
	ReactorID   int            `json:"reactor_id"`
	ServerPort  int            `json:"server_port"`
	IP          string         `json:"remote_ip"`
	Port        int            `json:"remote_port"`
	ConnectTime time.Time      `json:"connect_time"`
	LastTime    time.Time      `json:"last_time"`
	Raw         map[string]any `json:"raw,omitempty"`
}

func parseServerStats(raw map[string]any) ServerStats {
	return ServerStats{
		StartTime:   unixTime(raw["start_time"]),
		Connections: cast.ToInt(raw["connection_num"]),
		Accepted:    cast.ToInt(raw["accept_count"]),
		Closed:      cast.ToInt(raw["close_count"]),
		Requests:    cast.ToInt(raw["request_count"]),
		Raw:         raw,
	}
}

func parseClientInfo(id int, raw map[string]any) ClientInfo {
	return ClientInfo{
		ID:          id,
		ReactorID:   cast.ToInt(raw["reactor_id"]),
		ServerPort:  cast.ToInt(raw["server_port"]),
		IP:          cast.ToString(raw["remote_ip"]),
		Port:        cast.ToInt(raw["remote_port"]),
		ConnectTime: unixTime(raw["connect_time"]),
		LastTime:    unixTime(raw["last_time"]),
		Raw:         raw,
	}
}

// unixTime accepts either a time.Time or unix seconds.
func unixTime(v any) time.Time {
	switch t := v.(type) {
	case nil:
		return time.Time{}
	case time.Time:
		return t
	}
	secs := cast.ToInt64(v)
	if secs <= 0 {
		return time.Time{}
	}
	return time.Unix(secs, 0)
}
