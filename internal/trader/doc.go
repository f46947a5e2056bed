// Package trader binds the trading feed to the mirror engine.
//
// The feed relays MQTT frames from the trading engine; every data envelope
// carries a topic under trader/ or momentum/swing/. This package:
//   - Routes topic families to state slices (services, positions, account,
//     portfolio, config, swing, scanner, alerts)
//   - Normalizes service status spellings to a canonical set
//   - Parses money fields into decimals before they enter canonical state
//   - Publishes control frames (trader/control/ only) with optimistic
//     swing-config updates confirmed over REST
package trader
