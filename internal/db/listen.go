package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// RawDataObjectInsertedChannel is the Postgres NOTIFY channel fired by
// schema.sql's trigger on raw_data_objects inserts.
const RawDataObjectInsertedChannel = "raw_data_object_inserted"

// Listen acquires a dedicated connection and issues LISTEN on channel,
// invoking onNotify for each notification until ctx is cancelled or the
// connection is lost. Callers pair this with a periodic sweep so a missed
// or dropped notification never causes a permanently unlinked object.
func (d *DB) Listen(ctx context.Context, channel string, onNotify func(payload string)) error {
	conn, err := d.Pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire listen connection: %w", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{channel}.Sanitize()); err != nil {
		return fmt.Errorf("listen %s: %w", channel, err)
	}

	for {
		notification, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			return err
		}
		onNotify(notification.Payload)
	}
}
