package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WritePoint queues a point stamped with the current time.
// It satisfies relay.PointWriter. Points are dropped while disconnected.
//
// Example:
//
//	client.WritePoint("relay_publish",
//	    map[string]string{"peer": "10.0.0.7", "topic": "relay/10.0.0.7"},
//	    map[string]interface{}{"bytes": int64(3), "elapsed_ms": 0.42})
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	c.WritePointWithTime(measurement, tags, fields, time.Now())
}

// WritePointWithTime queues a point with an explicit timestamp.
func (c *Client) WritePointWithTime(measurement string, tags map[string]string, fields map[string]interface{}, timestamp time.Time) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(write.NewPoint(measurement, tags, fields, timestamp))
}
