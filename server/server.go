// Copyright © 2018 NAME HERE <EMAIL ADDRESS>
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync/atomic"

	"github.com/bmflynn/ccsdspy/ccsds"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
)

//
// Server
//

// Server relays decoded packets from a running decode pipeline to websocket
// clients and answers framing-configuration queries over REST
type Server struct {
	// Configuration
	Host string
	Port int

	ConfigPrefix    string
	WebsocketPrefix string

	// Framing database served over REST
	Framings *ccsds.FramingTable

	// Internal state
	clients      *map[*websocket.Conn]*Client // immutable, updated by handleSubscriptions()
	apidDispatch [ccsds.MaxAPID + 1]*apidDispatch

	// Channels
	packetChan                    chan ccsds.DecodedPacket
	addClientChan                 chan *Client
	removeClientChan              chan *Client
	updateClientSubscriptionsChan chan *updateClientSubscriptionsMsg

	relayed uint64
	dropped uint64

	StopRequest chan os.Signal
}

// Publish hands one decoded packet to the relay. It never blocks the decode
// pipeline; the packet is dropped and counted when the relay is saturated
func (server *Server) Publish(p ccsds.DecodedPacket) {
	select {
	case server.packetChan <- p:
	default:
		atomic.AddUint64(&server.dropped, 1)
	}
}

func (server *Server) initialize() {
	if server.Port == 0 {
		server.Port = 8000
	}
	// The default server.Host is ""
	if server.ConfigPrefix == "" {
		server.ConfigPrefix = "/config"
	}
	if server.WebsocketPrefix == "" {
		server.WebsocketPrefix = "/realtime/"
	}
	if server.Framings == nil {
		server.Framings = ccsds.NewFramingTable()
	}

	server.clients = &map[*websocket.Conn]*Client{}
	server.packetChan = make(chan ccsds.DecodedPacket, 300)
	server.addClientChan = make(chan *Client, 20)
	server.removeClientChan = make(chan *Client, 20)
	server.updateClientSubscriptionsChan = make(chan *updateClientSubscriptionsMsg, 20)
}

func (server *Server) router() *mux.Router {
	router := mux.NewRouter()

	// REST (order matters)
	configSubrouter := router.PathPrefix(server.ConfigPrefix).Subrouter()
	configSubrouter.HandleFunc("/{scid}", func(w http.ResponseWriter, r *http.Request) { server.handleConfigGet(w, r) }).Methods("GET")
	configSubrouter.HandleFunc("", func(w http.ResponseWriter, r *http.Request) { server.handleConfigList(w, r) }).Methods("GET")

	router.HandleFunc("/report", func(w http.ResponseWriter, r *http.Request) {
		server.handleReport(w, r)
	}).Methods("GET")

	router.HandleFunc("/shutdown", func(w http.ResponseWriter, r *http.Request) {
		server.handleShutdown(w, r)
	}).Methods("GET")

	// WebSocket
	router.HandleFunc(server.WebsocketPrefix, func(w http.ResponseWriter, req *http.Request) {
		server.serveWS(w, req)
	})

	return router
}

// Run runs the relay until interrupted
func (server *Server) Run() {
	server.initialize()

	// add/remove clients, update subscriptions
	go server.handleSubscriptions()
	go server.packetPump()

	addr := fmt.Sprintf("%s:%d", server.Host, server.Port)
	h := &http.Server{Addr: addr, Handler: server.router()}

	// Receive interrupts and shut down gracefully
	server.StopRequest = make(chan os.Signal, 2)
	signal.Notify(server.StopRequest, os.Interrupt)

	go func() {
		log.WithField("addr", addr).Info("listening")
		err := h.ListenAndServe()
		if err != http.ErrServerClosed {
			log.Fatal(err)
		}
	}()

	<-server.StopRequest
	log.Info("shutting down the server")
	h.Shutdown(context.Background())
	log.Info("server stopped")
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 16384,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

func (server *Server) serveWS(w http.ResponseWriter, req *http.Request) {
	conn, err := upgrader.Upgrade(w, req, nil)
	if err != nil {
		log.Error(err)
		return
	}
	server.addClientChan <- newClient(server, conn)
}

//
// Handle Subscriptions
//

// All management of subscriptions is centralized here. The datastructures
// live on the server and client objects and don't allow concurrent access:
// the maps are replaced, never mutated in place, so the packet pump reads
// dispatch entries without locking.

func (server *Server) handleSubscriptions() {
	for {
		select {

		case client := <-server.addClientChan:
			oldClientMap := *server.clients
			newClientMap := make(map[*websocket.Conn]*Client)
			for oldconn, oldclient := range oldClientMap {
				newClientMap[oldconn] = oldclient
			}
			newClientMap[client.conn] = client
			server.clients = &newClientMap
			// No need to touch the dispatch table

			go client.writePump()
			go client.readPump()

		case client := <-server.removeClientChan:
			oldConn := client.conn
			client.conn = nil
			if oldConn != nil {
				if err := oldConn.Close(); err != nil {
					log.WithError(err).Debug("removing client: error closing connection")
				}
			}

			oldClientMap := *server.clients
			newClientMap := make(map[*websocket.Conn]*Client)
			for oldconn, oldclient := range oldClientMap {
				if oldclient != client {
					newClientMap[oldconn] = oldclient
				}
			}
			server.clients = &newClientMap
			server.rebuildDispatch(client.subscriptions)

		case msg := <-server.updateClientSubscriptionsChan:
			newSubscriptions := make(map[int]bool, len(msg.client.subscriptions))
			for apid := range msg.client.subscriptions {
				newSubscriptions[apid] = true
			}
			var badAPIDs []int
			for _, apid := range msg.apids {
				if apid < 0 || apid > ccsds.MaxAPID {
					badAPIDs = append(badAPIDs, apid)
					continue
				}
				if msg.isAdd {
					newSubscriptions[apid] = true
				} else {
					delete(newSubscriptions, apid)
				}
			}
			touched := make(map[int]bool, len(newSubscriptions))
			for apid := range msg.client.subscriptions {
				touched[apid] = true
			}
			for _, apid := range msg.apids {
				touched[apid] = true
			}
			msg.client.subscriptions = newSubscriptions
			server.rebuildDispatch(touched)

			verb := "subscribe"
			if !msg.isAdd {
				verb = "unsubscribe"
			}
			response := SubscribeResponse{Response: verb, Token: msg.token, Status: "success"}
			if len(badAPIDs) > 0 {
				response.Status = "error"
				response.BadAPIDs = badAPIDs
			}
			sendJSON(response, msg.client)
		}
	}
}

// rebuildDispatch recomputes dispatch entries for the touched apids from the
// current client map. Entries are replaced atomically; nil means nobody is
// listening
func (server *Server) rebuildDispatch(apids map[int]bool) {
	for apid := range apids {
		if apid < 0 || apid > ccsds.MaxAPID {
			continue
		}
		var clients []*Client
		for _, client := range *server.clients {
			if client.subscriptions[apid] {
				clients = append(clients, client)
			}
		}
		if clients == nil {
			server.apidDispatch[apid] = nil
		} else {
			server.apidDispatch[apid] = &apidDispatch{clients: clients}
		}
	}
}

// One of these is stored per apid with at least one subscriber. Entries are
// only ever rebuilt, never modified, so reads need no locks
type apidDispatch struct {
	clients []*Client
}

//
// Realtime Packet Relay
//

func (server *Server) packetPump() {
	for pkt := range server.packetChan {
		apid := pkt.Packet.APID()
		if apid < 0 || apid > ccsds.MaxAPID {
			continue
		}
		dispatch := server.apidDispatch[apid] // refetch on every packet
		if dispatch == nil {
			continue
		}
		atomic.AddUint64(&server.relayed, 1)
		sendJSON(PacketMessage{
			Response: "packet",
			APID:     apid,
			SCID:     int(pkt.SCID),
			VCID:     int(pkt.VCID),
			Sequence: pkt.Packet.SequenceCount(),
			Length:   pkt.Packet.TotalLength(),
			Data:     pkt.Packet,
		}, dispatch.clients...)
	}
}

//
// REST Handlers
//

func (server *Server) handleConfigList(w http.ResponseWriter, r *http.Request) {
	prepareHeader(w, r)
	json.NewEncoder(w).Encode(ConfigListResponse{SCIDs: server.Framings.SCIDs()})
}

func (server *Server) handleConfigGet(w http.ResponseWriter, r *http.Request) {
	prepareHeader(w, r)
	scid, err := strconv.Atoi(mux.Vars(r)["scid"])
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(RestErrorResponse{Error: "BadSpacecraftID", Message: err.Error()})
		return
	}
	cfg, ok := server.Framings.Lookup(scid)
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(RestErrorResponse{Error: "UnknownSpacecraft", Message: fmt.Sprintf("no framing configuration for scid %d", scid)})
		return
	}
	json.NewEncoder(w).Encode(cfg)
}

func (server *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	clients := *server.clients
	connections := make([]ReportConnection, 0, len(clients))
	for conn, client := range clients {
		apids := client.subscribedAPIDs()
		connections = append(connections, ReportConnection{Address: conn.RemoteAddr().String(), SubscriptionCount: len(apids), APIDs: apids})
	}

	response := ReportTemplate{
		Version:         "0.1",
		Relayed:         atomic.LoadUint64(&server.relayed),
		Dropped:         atomic.LoadUint64(&server.dropped),
		ConnectionCount: len(connections),
		Connections:     connections,
	}
	prepareHeader(w, r)
	json.NewEncoder(w).Encode(response)
}

func (server *Server) handleShutdown(w http.ResponseWriter, r *http.Request) {
	server.StopRequest <- &FakeInterrupt{}
}

// FakeInterrupt is for mocking the server shutdown message
type FakeInterrupt struct{}

// String is needed to match an interrupt's interface
func (f *FakeInterrupt) String() string { return "fake interrupt" }

// Signal is needed to match an interrupt's interface
func (f FakeInterrupt) Signal() {}

func prepareHeader(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json; charset=UTF-8")
	w.Header().Set("Access-Control-Allow-Origin", "*")
}

////////////////////////////////////////////////////////////////////////
// Client
////////////////////////////////////////////////////////////////////////

// Client is the middleman between the websocket connection and the server
type Client struct {
	server        *Server
	conn          *websocket.Conn
	msgChan       chan []byte  // Client receives msgs from channel and sends to the websocket connection
	subscriptions map[int]bool // immutable; replaced by handleSubscriptions()
}

func newClient(server *Server, conn *websocket.Conn) *Client {
	return &Client{
		server:        server,
		conn:          conn,
		msgChan:       make(chan []byte, 32),
		subscriptions: make(map[int]bool),
	}
}

func (client *Client) subscribedAPIDs() []int {
	apids := make([]int, 0, len(client.subscriptions))
	for apid := range client.subscriptions {
		apids = append(apids, apid)
	}
	return apids
}

//
// Read Pump
//

func (client *Client) readPump() {
	for {
		conn := client.conn
		if conn == nil {
			return
		}
		messageType, p, err := conn.ReadMessage()
		if messageType == websocket.CloseMessage {
			requestRemoveClient(client)
			log.WithField("remote", conn.RemoteAddr().String()).Debug("websocket closed")
			return
		} else if err != nil {
			oldConn := conn
			requestRemoveClient(client)
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived, websocket.CloseAbnormalClosure) {
				log.WithError(err).Warn("websocket closed unexpectedly")
			} else {
				log.WithField("remote", oldConn.RemoteAddr().String()).Debug("websocket closed")
			}
			return
		} else if messageType != websocket.TextMessage {
			requestRemoveClient(client)
			log.Warnf("websocket received a non-text message of type %d", messageType)
			return
		}

		var msg GenericRequest
		if err := json.Unmarshal(p, &msg); err != nil {
			log.Warnf("websocket received a non-json message: %s", string(p))
			continue
		}

		switch msg.Request {
		case "ping":
			sendJSON(GenericResponse{Response: "ping", Token: msg.Token}, client)
		case "subscribe", "unsubscribe":
			var sub SubscribeRequest
			if err := json.Unmarshal(p, &sub); err != nil {
				sendJSON(ErrorResponse{Response: msg.Request, Token: msg.Token, Error: err.Error()}, client)
				continue
			}
			client.server.updateClientSubscriptionsChan <- &updateClientSubscriptionsMsg{
				client: client,
				isAdd:  msg.Request == "subscribe",
				apids:  sub.APIDs,
				token:  sub.Token,
			}
		case "report-subscriptions":
			sendJSON(ReportSubscriptionsResponse{Response: "report-subscriptions", APIDs: client.subscribedAPIDs()}, client)
		default:
			err := fmt.Sprintf("no handler for request %q", msg.Request)
			log.Warnf("websocket: %s: %s", err, string(p))
			sendJSON(ErrorResponse{Response: msg.Request, Token: msg.Token, Error: err}, client)
		}
	}
}

//
// Write Pump
//

func (client *Client) writePump() {
	for msg := range client.msgChan {
		c := client.conn
		if c == nil {
			continue
		}
		err := c.WriteMessage(websocket.TextMessage, msg)
		if err == websocket.ErrCloseSent {
			requestRemoveClient(client)
			return
		}
		if err != nil {
			log.WithError(err).Warn("websocket error on write")
			requestRemoveClient(client)
			return
		}
	}
}

func requestRemoveClient(client *Client) {
	client.server.removeClientChan <- client
}

//
// Message Helper Functions
//

// send a message to one or more clients
func send(msg []byte, clients ...*Client) {
	for i := 0; i < len(clients); i++ {
		select {
		case clients[i].msgChan <- msg:
		default:
			// slow consumer; drop rather than stall the pump
		}
	}
}

// sendJSON to one or more clients
func sendJSON(msg interface{}, clients ...*Client) {
	if len(clients) < 1 {
		return
	}
	if bytes, err := json.Marshal(msg); err == nil {
		send(bytes, clients...)
	} else {
		log.Errorf("error preparing json for a message: %v", msg)
	}
}

//
// Public Websocket Message Templates
//

// GenericRequest is a message template. Also used as a minimal request
type GenericRequest struct {
	Request string      `json:"request"`
	Token   interface{} `json:"token"`
}

// GenericResponse is a message template
type GenericResponse struct {
	Response string      `json:"response"`
	Token    interface{} `json:"token"`
}

// SubscribeRequest is a message template
type SubscribeRequest struct {
	Request string      `json:"request"`
	Token   interface{} `json:"token"`
	APIDs   []int       `json:"apids"`
}

// SubscribeResponse is a message template
type SubscribeResponse struct {
	Response string      `json:"response"`
	Token    interface{} `json:"token"`
	Status   string      `json:"status"`
	BadAPIDs []int       `json:"bad_apids,omitempty"`
}

// ErrorResponse is a generic message template
type ErrorResponse struct {
	Response string      `json:"response"`
	Token    interface{} `json:"token"`
	Error    string      `json:"error"`
}

// ReportSubscriptionsResponse is a message template
type ReportSubscriptionsResponse struct {
	Response string `json:"response"`
	APIDs    []int  `json:"apids"`
}

// PacketMessage carries one relayed packet; Data is base64 in the JSON
type PacketMessage struct {
	Response string `json:"response"`
	APID     int    `json:"apid"`
	SCID     int    `json:"scid"`
	VCID     int    `json:"vcid"`
	Sequence int    `json:"sequence"`
	Length   int    `json:"length"`
	Data     []byte `json:"data"`
}

//
// Public REST Message Templates
//

// RestErrorResponse is a message template
type RestErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// ConfigListResponse lists the known spacecraft ids
type ConfigListResponse struct {
	SCIDs []int `json:"scids"`
}

// ReportTemplate is the /report response
type ReportTemplate struct {
	Version         string             `json:"version"`
	Relayed         uint64             `json:"relayed"`
	Dropped         uint64             `json:"dropped"`
	ConnectionCount int                `json:"connection_count"`
	Connections     []ReportConnection `json:"connections"`
}

// ReportConnection describes one websocket connection in the report
type ReportConnection struct {
	Address           string `json:"address"`
	SubscriptionCount int    `json:"subscription_count"`
	APIDs             []int  `json:"apids"`
}

//
// Internal Message Templates
//

type updateClientSubscriptionsMsg struct {
	client *Client
	isAdd  bool
	token  interface{}
	apids  []int
}
