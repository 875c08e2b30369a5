// Package redisbus carries human requests and replies over Redis pub/sub, so
// operator tools running outside the process can answer agents.
package redisbus
