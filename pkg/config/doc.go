// Package config loads the dispatcher's process-wide knobs (ping interval,
// karma period, persistent-pool capacity, max packet size, resolve mode) from
// YAML, and parses the agent-spec string grammar (§6) used to describe a
// mirror group: "host[:port] | /unix/path" alternatives, an optional
// "[option=value,...]" block, and an optional trailing ":index[,index]*".
package config
