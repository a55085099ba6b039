package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/veridianhq/veridian/pkg/orgs"
)

// errorResponse is the wire shape of every error the API returns.
type errorResponse struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError maps a service error onto the wire. Coded errors carry their
// own status hint; everything else is a 500 with a generic code.
func writeError(w http.ResponseWriter, err error) {
	if coded, ok := orgs.AsCoded(err); ok {
		writeJSON(w, coded.Status, errorResponse{Error: errorBody{
			Code:    string(coded.Code),
			Message: coded.Message,
		}})
		return
	}
	writeJSON(w, http.StatusInternalServerError, errorResponse{Error: errorBody{
		Code:    "INTERNAL",
		Message: err.Error(),
	}})
}

func writeBadRequest(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusBadRequest, errorResponse{Error: errorBody{
		Code:    "BAD_REQUEST",
		Message: message,
	}})
}

func orgIDFromPath(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	return id, err == nil && id > 0
}

func decodeBody(r *http.Request, v interface{}) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}
