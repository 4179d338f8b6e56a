package queue

import (
	"context"
	"encoding/binary"

	jsoniter "github.com/json-iterator/go"

	"github.com/groupwave/corestore/storedrv"
)

var jsonMessage = jsoniter.ConfigCompatibleWithStandardLibrary

// messageKey encodes the archive key a Message is stored under in
// storedrv.SubspaceQueue, keyed directly by its queueID (spec.md §6: "queue
// message archives" is its own subspace, not account/collection/document
// scoped, since a queued message outlives the document that scheduled it).
func messageKey(queueID uint64) []byte {
	k := make([]byte, 0, 9)
	k = append(k, byte(storedrv.SubspaceQueue))
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], queueID)
	return append(k, tmp[:]...)
}

// StoreMessage archives msg under its QueueID, for callers scheduling a
// new queue-event (batch's write pipeline schedules the event key
// separately via QueueEventKey).
func StoreMessage(ctx context.Context, drv storedrv.Driver, msg *Message) error {
	v, err := jsonMessage.Marshal(msg)
	if err != nil {
		return err
	}
	return drv.Write(ctx, func(txn storedrv.Txn) error {
		txn.Set(messageKey(msg.QueueID), v)
		return nil
	})
}

// LoadMessage implements MessageLoader against a storedrv.Driver directly.
func LoadMessage(ctx context.Context, drv storedrv.Driver, queueID uint64) (*Message, error) {
	v, ok, err := drv.Get(ctx, messageKey(queueID))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	var msg Message
	if err := jsonMessage.Unmarshal(v, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// DriverMessageLoader adapts LoadMessage into a MessageLoader bound to drv.
func DriverMessageLoader(drv storedrv.Driver) MessageLoader {
	return func(ctx context.Context, queueID uint64) (*Message, error) {
		return LoadMessage(ctx, drv, queueID)
	}
}
