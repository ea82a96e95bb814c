package runner

// seconds
var customBuckets = map[string][]float64{
	"tunnel_connect_latency": {
		0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30,
	},
}
