// Package liveserver streams bot state to websocket observers: periodic
// statistics snapshots, settled fills, and open-order summaries.
package liveserver

// Message types pushed to clients.
const (
	TypeStats  = "stats"
	TypeFill   = "fill"
	TypeOrders = "orders"
	TypeHello  = "hello"
)

// Message is the wire envelope sent to clients.
type Message struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// NewStatsMessage wraps a statistics snapshot.
func NewStatsMessage(data interface{}) Message { return Message{Type: TypeStats, Data: data} }

// NewFillMessage wraps a settled fill event.
func NewFillMessage(data interface{}) Message { return Message{Type: TypeFill, Data: data} }

// NewOrdersMessage wraps an open-order summary.
func NewOrdersMessage(data interface{}) Message { return Message{Type: TypeOrders, Data: data} }
