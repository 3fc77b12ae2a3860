package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"beacon/service/bridge"
	"beacon/service/delivery"
	"beacon/service/util"
)

type invokeRequest struct {
	Command string         `json:"command"`
	Args    map[string]any `json:"args,omitempty"`
}

// Result must not carry omitempty: a false result is still a result, and
// the bridge distinguishes false from absent.
type invokeResponse struct {
	Result any    `json:"result"`
	Error  string `json:"error,omitempty"`
}

// handleInvoke is the host side of the webview bridge: one endpoint, one
// command table, mirroring what the mobile shell exposes to its page.
// Command-level failures travel in the response's error field; the
// client-side bridge turns them into its fallback path.
func (s *Server) handleInvoke(w http.ResponseWriter, r *http.Request) {
	var req invokeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Command == "" {
		http.Error(w, "command is required", http.StatusBadRequest)
		return
	}

	result, err := s.dispatchCommand(req.Command, req.Args)
	if err != nil {
		s.logger.Warn("Invoke command failed", "command", req.Command, "error", err)
		util.WriteJSON(w, invokeResponse{Error: err.Error()})
		return
	}

	util.WriteJSON(w, invokeResponse{Result: result})
}

func (s *Server) dispatchCommand(command string, args map[string]any) (any, error) {
	switch command {
	case bridge.CmdIsSupported:
		return s.publisher.Supported(), nil

	case bridge.CmdCheckPermission, bridge.CmdRequestPermission:
		// Permission here means "this host can actually deliver
		// somewhere": at least one sender and one registered target.
		if !s.publisher.Supported() {
			return false, nil
		}
		n, err := s.store.CountTargets()
		if err != nil {
			return nil, err
		}
		return n > 0, nil

	case bridge.CmdShowNotification:
		notif := delivery.Notification{
			Title: stringArg(args, "title"),
			Body:  stringArg(args, "body"),
			Icon:  stringArg(args, "icon"),
			Tag:   stringArg(args, "tag"),
		}
		s.logger.Info("Showing native notification", "title", notif.Title, "body", notif.Body)
		if err := s.publisher.Publish(notif); err != nil {
			return nil, err
		}
		return true, nil

	case bridge.CmdKeychainStore:
		if err := s.keys.Put(stringArg(args, "key"), stringArg(args, "value")); err != nil {
			return nil, err
		}
		return true, nil

	case bridge.CmdKeychainRetrieve:
		value, err := s.keys.Get(stringArg(args, "key"))
		if err != nil {
			return nil, err
		}
		return value, nil

	case bridge.CmdKeychainRemove:
		if err := s.keys.Delete(stringArg(args, "key")); err != nil {
			return nil, err
		}
		return true, nil

	case bridge.CmdKeychainExists:
		ok, err := s.keys.Exists(stringArg(args, "key"))
		if err != nil {
			return nil, err
		}
		return ok, nil

	default:
		return nil, errors.New("unknown command: " + command)
	}
}

// stringArg tolerates absent and null values; the bridge sends icon as an
// explicit null when unset.
func stringArg(args map[string]any, key string) string {
	if args == nil {
		return ""
	}
	if v, ok := args[key].(string); ok {
		return v
	}
	return ""
}
