package main

import (
	"encoding/json"
	"io"
	"log"
	"net/http"
	"time"

	sse "github.com/alexandrevicenzi/go-sse"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const publishInterval = 100 * time.Millisecond

type api struct {
	http.Handler
	m   *machine
	log *logrus.Entry
	sse *sse.Server

	upgrader websocket.Upgrader
}

func newAPI(m *machine, logger *logrus.Entry) *api {
	r := mux.NewRouter()

	a := &api{
		Handler: r,
		m:       m,
		log:     logger,
		sse: sse.NewServer(&sse.Options{
			Logger: log.New(io.Discard, "", 0),
		}),
	}

	r.HandleFunc("/api/state", a.state).Methods("GET")
	r.HandleFunc("/api/signals/{name}", a.setSignal).Methods("POST")
	r.HandleFunc("/api/reset", a.reset).Methods("POST")
	r.HandleFunc("/api/home/{axis}", a.home).Methods("POST")
	r.HandleFunc("/ws", a.ws)
	r.PathPrefix("/events/").Handler(a.sse)

	go func() {
		for range time.NewTicker(publishInterval).C {
			data, err := json.Marshal(m.snapshot())
			if err != nil {
				a.log.Errorf("marshal state: %v", err)
				continue
			}
			a.sse.SendMessage("/events/state", sse.SimpleMessage(string(data)))
		}
	}()

	return a
}

func (a *api) state(w http.ResponseWriter, req *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	err := json.NewEncoder(w).Encode(a.m.snapshot())
	if err != nil {
		a.log.Errorf("write state: %v", err)
	}
}

func (a *api) setSignal(w http.ResponseWriter, req *http.Request) {
	name := mux.Vars(req)["name"]
	value := req.FormValue("value")
	if value == "" {
		http.Error(w, "missing value", http.StatusBadRequest)
		return
	}

	if err := a.m.setSignal(name, value); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *api) reset(w http.ResponseWriter, req *http.Request) {
	a.m.pulseReset()
	w.WriteHeader(http.StatusNoContent)
}

func (a *api) home(w http.ResponseWriter, req *http.Request) {
	axis := mux.Vars(req)["axis"]
	if len(axis) != 1 || !a.m.startHoming(axis[0]) {
		http.Error(w, "unknown axis", http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ws streams state snapshots until the client goes away.
func (a *api) ws(w http.ResponseWriter, req *http.Request) {
	conn, err := a.upgrader.Upgrade(w, req, nil)
	if err != nil {
		a.log.Errorf("upgrade: %v", err)
		return
	}
	defer conn.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	t := time.NewTicker(publishInterval)
	defer t.Stop()
	for {
		select {
		case <-done:
			return
		case <-t.C:
		}
		if err := conn.WriteJSON(a.m.snapshot()); err != nil {
			return
		}
	}
}
