package lms7

import (
	"fmt"
)

// snapshot holds the registers captured in one bank
type snapshot struct {
	channel Channel
	addrs   []uint16
	values  []uint16
}

// Backup is a register snapshot that can be restored exactly once
type Backup struct {
	chip      *Chip
	channel   Channel
	snapshots []snapshot
	consumed  bool
}

func addrRange(first, last uint16) []uint16 {
	addrs := make([]uint16, 0, last-first+1)
	for addr := first; addr <= last; addr++ {
		addrs = append(addrs, addr)
	}
	return addrs
}

// globalAddresses spans every functional block of one channel
func globalAddresses() []uint16 {
	addrs := []uint16{RegChannelControl, 0x0082}
	addrs = append(addrs, addrRange(0x0084, 0x008C)...)
	addrs = append(addrs, addrRange(0x0100, 0x011A)...)
	addrs = append(addrs, addrRange(0x0200, 0x020C)...)
	addrs = append(addrs, addrRange(0x0240, 0x0261)...)
	addrs = append(addrs, addrRange(0x0400, 0x040D)...)
	addrs = append(addrs, addrRange(0x0440, 0x0461)...)
	return addrs
}

var sxAddresses = addrRange(0x011C, 0x0124)

// BackupGlobal snapshots the active channel, both synthesizers, the channel A
// LO sharing registers and the receive GFIR3 coefficients
func (c *Chip) BackupGlobal() (*Backup, error) {
	ch, err := c.ActiveChannel()
	if err != nil {
		return nil, fmt.Errorf("backup: %w", err)
	}
	b := &Backup{chip: c, channel: ch}

	gfir, err := gfirAddrs(Rx, 3, GFIRTaps(3))
	if err != nil {
		return nil, err
	}
	if err := b.capture(ch, append(globalAddresses(), gfir...)); err != nil {
		return nil, err
	}
	if err := b.capture(ChannelA, append([]uint16{0x0100, 0x010D}, sxAddresses...)); err != nil {
		return nil, err
	}
	if err := b.capture(ChannelB, sxAddresses); err != nil {
		return nil, err
	}
	if err := c.SetActiveChannel(ch); err != nil {
		return nil, fmt.Errorf("backup: %w", err)
	}
	c.logger.Debug("Global register backup taken", "channel", ch.String())
	return b, nil
}

// BackupMap snapshots every known register of both channel banks
func (c *Chip) BackupMap() (*Backup, error) {
	ch, err := c.ActiveChannel()
	if err != nil {
		return nil, fmt.Errorf("backup: %w", err)
	}
	b := &Backup{chip: c, channel: ch}

	var banked []uint16
	all := knownAddresses()
	for _, addr := range all {
		if !Shared(addr) {
			banked = append(banked, addr)
		}
	}
	if err := b.capture(ChannelA, all); err != nil {
		return nil, err
	}
	if err := b.capture(ChannelB, banked); err != nil {
		return nil, err
	}
	if err := c.SetActiveChannel(ch); err != nil {
		return nil, fmt.Errorf("backup: %w", err)
	}
	c.logger.Debug("Register map backup taken", "channel", ch.String())
	return b, nil
}

func (b *Backup) capture(ch Channel, addrs []uint16) error {
	if err := b.chip.SetActiveChannel(ch); err != nil {
		return fmt.Errorf("backup: %w", err)
	}
	values, err := b.chip.ReadBatch(addrs)
	if err != nil {
		return fmt.Errorf("backup of channel %v: %w", ch, err)
	}
	b.snapshots = append(b.snapshots, snapshot{
		channel: ch,
		addrs:   append([]uint16(nil), addrs...),
		values:  values,
	})
	return nil
}

// Channel returns the channel that was active when the backup was taken
func (b *Backup) Channel() Channel {
	return b.channel
}

// Restore re-reads the captured registers, writes back those whose value
// changed since the backup, reselects the original channel and pulses the
// Tx logic resets
func (b *Backup) Restore() error {
	if b.consumed {
		return ErrBackupConsumed
	}
	b.consumed = true
	c := b.chip

	control, haveControl := uint16(0), false
	for _, s := range b.snapshots {
		if err := c.SetActiveChannel(s.channel); err != nil {
			return fmt.Errorf("restore: %w", err)
		}
		current, err := c.ReadBatch(s.addrs)
		if err != nil {
			return fmt.Errorf("restore of channel %v: %w", s.channel, err)
		}
		var addrs, values []uint16
		for i, addr := range s.addrs {
			if addr == RegChannelControl {
				control, haveControl = s.values[i], true
				continue
			}
			if current[i] == s.values[i] {
				continue
			}
			addrs = append(addrs, addr)
			values = append(values, s.values[i])
		}
		if err := c.WriteBatch(addrs, values); err != nil {
			return fmt.Errorf("restore of channel %v: %w", s.channel, err)
		}
	}

	if haveControl {
		if err := c.WriteRegister(RegChannelControl, control); err != nil {
			return fmt.Errorf("restore: %w", err)
		}
	} else if err := c.SetActiveChannel(b.channel); err != nil {
		return fmt.Errorf("restore: %w", err)
	}

	x, err := c.ReadRegister(RegChannelControl)
	if err != nil {
		return fmt.Errorf("restore: %w", err)
	}
	if err := c.WriteRegister(RegChannelControl, x&^TxLogicResetMask); err != nil {
		return fmt.Errorf("restore: %w", err)
	}
	if err := c.WriteRegister(RegChannelControl, x); err != nil {
		return fmt.Errorf("restore: %w", err)
	}
	c.logger.Debug("Registers restored", "channel", b.channel.String())
	return nil
}
