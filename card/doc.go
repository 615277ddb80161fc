// Package card emulates SD, MMC and SDIO cards at the command level.
//
// A [Card] answers the command phase of each request through
// [Card.Command] and moves data one block at a time through
// [Card.ReadBlock] and [Card.WriteBlock]. It tracks the card state
// machine (idle, ready, ident, stby, tran, data, rcv, boot, ina), the
// card registers (CID, CSD, SCR, ExtCSD, CCCR and CIS) and the CMD6
// switch function state.
//
// # Card Families
//
//   - [TypeSD]: SDSC v1/v2 and SDHC/SDXC, with ACMD41, ACMD6 and ACMD51
//   - [TypeMMC]: legacy and v4+ MMC with ExtCSD, CMD6 byte writes and
//     a boot partition payload
//   - [TypeSDIO]: I/O only, with CMD5 and CMD52 access to the CCCR and
//     the common CIS tuple chain
//
// Memory cards keep their contents in a [Storage] backend. The default is
// a [MemoryStorage] sized by [Config].Blocks; a [FileStorage] serves a
// disk image.
//
// # Quirks
//
// Some real cards misbehave in ways a host stack must tolerate. [Config]
// can reproduce a few of them:
//
//   - SpuriousRCAError: MMC CMD3 succeeds but reports a CRC error
//   - IgnoreExtCSDWrites: MMC CMD6 writes are accepted and dropped
//   - SwitchBusyPolls: SD CMD6 reports the selected function busy
//   - PowerUpPolls: ACMD41/CMD1 answer busy before power-up completes
//
// # Usage
//
//	c := card.New(card.Config{Type: card.TypeSD, HighCapacity: true, Blocks: 1 << 16})
//	sim := sim.New(c)
//	h := host.New(sim, host.DefaultConfig())
package card
