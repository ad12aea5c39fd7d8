package broker

import amqp "github.com/rabbitmq/amqp091-go"

// DeclareTopology returns a Topology that declares the fanout exchange raw
// data is published to and the durable queues bound to it, plus the
// media and correction queues which are addressed directly rather than
// fanned out.
func DeclareTopology(rawExchange, processingQueue, mediaQueue, correctionQueue string) Topology {
	return func(ch *amqp.Channel) error {
		if err := ch.ExchangeDeclare(rawExchange, amqp.ExchangeFanout, true, false, false, false, nil); err != nil {
			return err
		}

		if _, err := ch.QueueDeclare(processingQueue, true, false, false, false, nil); err != nil {
			return err
		}
		if err := ch.QueueBind(processingQueue, "", rawExchange, false, nil); err != nil {
			return err
		}

		if _, err := ch.QueueDeclare(mediaQueue, true, false, false, false, nil); err != nil {
			return err
		}

		if _, err := ch.QueueDeclare(correctionQueue, true, false, false, false, nil); err != nil {
			return err
		}

		return nil
	}
}

// PublishRaw publishes a persistent message carrying a raw sensor payload
// to the fanout exchange, with the user id attached as a header so
// consumers can classify ownership without parsing the body first.
func (c *Client) PublishRaw(exchange, userID string, body []byte) error {
	ch, err := c.Channel()
	if err != nil {
		return err
	}
	return ch.Publish(exchange, "", false, false, amqp.Publishing{
		ContentType:     "application/octet-stream",
		ContentEncoding: "zstd",
		DeliveryMode:    amqp.Persistent,
		Headers:         amqp.Table{"user_id": userID},
		Body:            body,
	})
}

// MediaMetadata carries the ingest-time fields PostMedia validates,
// reproduced as message headers so the Media Processor never has to
// re-derive them from wall-clock time.
type MediaMetadata struct {
	UserID           string
	SessionID        string
	OriginalFilename string
	TimestampUTC     string
	StartTimeUTC     string
	EndTimeUTC       string
}

// PublishMedia publishes a persistent media message directly to the
// media processing queue using the default exchange, carrying meta's
// fields as headers.
func (c *Client) PublishMedia(queue string, meta MediaMetadata, mimeType string, body []byte) error {
	ch, err := c.Channel()
	if err != nil {
		return err
	}
	headers := amqp.Table{"user_id": meta.UserID}
	if meta.SessionID != "" {
		headers["session_id"] = meta.SessionID
	}
	if meta.OriginalFilename != "" {
		headers["original_filename"] = meta.OriginalFilename
	}
	if meta.TimestampUTC != "" {
		headers["timestamp_utc"] = meta.TimestampUTC
	}
	if meta.StartTimeUTC != "" {
		headers["start_time_utc"] = meta.StartTimeUTC
	}
	if meta.EndTimeUTC != "" {
		headers["end_time_utc"] = meta.EndTimeUTC
	}
	return ch.Publish("", queue, false, false, amqp.Publishing{
		ContentType:  mimeType,
		DeliveryMode: amqp.Persistent,
		Headers:      headers,
		Body:         body,
	})
}

// PublishCorrectionJob enqueues a correction job id for the corrector to
// pick up.
func (c *Client) PublishCorrectionJob(queue, jobID string) error {
	ch, err := c.Channel()
	if err != nil {
		return err
	}
	return ch.Publish("", queue, false, false, amqp.Publishing{
		ContentType:  "text/plain",
		DeliveryMode: amqp.Persistent,
		Body:         []byte(jobID),
	})
}
