package flow

import (
	"Go2FlowMeter/internal/features"
	"Go2FlowMeter/internal/model"
	"strings"
	"time"
)

// TimestampLayout renders the flow start time in the Timestamp column.
const TimestampLayout = "02/01/2006 03:04:05 PM"

// ID returns the direction-independent key of the flow.
func (f *Flow) ID() string { return CanonicalID(f.Tuple()) }

// ForwardKey returns the key of the flow in its forward direction.
func (f *Flow) ForwardKey() string { return ForwardID(f.Tuple()) }

// Tuple returns the forward addressing of the flow.
func (f *Flow) Tuple() model.FiveTuple {
	return model.FiveTuple{
		SrcIP:    f.src,
		DstIP:    f.dst,
		SrcPort:  f.srcPort,
		DstPort:  f.dstPort,
		Protocol: f.protocol,
	}
}

func (f *Flow) Bidirectional() bool { return f.bidirectional }
func (f *Flow) StartTime() int64    { return f.startTime }
func (f *Flow) LastSeen() int64     { return f.lastSeen }

// Duration is the time between the first and the last packet.
func (f *Flow) Duration() int64 { return f.lastSeen - f.startTime }

func (f *Flow) FwdPackets() int64   { return f.fwdLen.N() }
func (f *Flow) BwdPackets() int64   { return f.bwdLen.N() }
func (f *Flow) FwdBytes() int64     { return f.fwdBytes }
func (f *Flow) BwdBytes() int64     { return f.bwdBytes }
func (f *Flow) SubflowCount() int64 { return f.sfCount }

// PacketCount is forward plus backward packets, or forward alone for a unidirectional flow.
func (f *Flow) PacketCount() int64 {
	if f.bidirectional {
		return f.fwdLen.N() + f.bwdLen.N()
	}
	return f.fwdLen.N()
}

// Statistic accessors return copies.
func (f *Flow) FwdLength() Stats { return f.fwdLen }
func (f *Flow) BwdLength() Stats { return f.bwdLen }
func (f *Flow) FlowLength() Stats { return f.flowLen }
func (f *Flow) FwdIAT() Stats    { return f.fwdIAT }
func (f *Flow) BwdIAT() Stats    { return f.bwdIAT }
func (f *Flow) FlowIAT() Stats   { return f.flowIAT }
func (f *Flow) Active() Stats    { return f.active }
func (f *Flow) Idle() Stats      { return f.idle }

func (f *Flow) seconds() float64 { return float64(f.Duration()) / 1e6 }

func (f *Flow) perSecond(v float64) float64 {
	if f.Duration() <= 0 {
		return 0
	}
	return v / f.seconds()
}

func (f *Flow) FlowBytesPerSecond() float64 {
	return f.perSecond(float64(f.fwdBytes + f.bwdBytes))
}

func (f *Flow) FlowPacketsPerSecond() float64 {
	return f.perSecond(float64(f.PacketCount()))
}

func (f *Flow) FwdPacketsPerSecond() float64 { return f.perSecond(float64(f.fwdLen.N())) }
func (f *Flow) BwdPacketsPerSecond() float64 { return f.perSecond(float64(f.bwdLen.N())) }

// DownUpRatio is backward over forward packets, 0 without forward packets.
func (f *Flow) DownUpRatio() float64 {
	if f.fwdLen.N() == 0 {
		return 0
	}
	return float64(f.bwdLen.N()) / float64(f.fwdLen.N())
}

func (f *Flow) AvgPacketSize() float64 {
	n := f.PacketCount()
	if n == 0 {
		return 0
	}
	return f.flowLen.Sum() / float64(n)
}

func (f *Flow) FwdAvgSegmentSize() float64 {
	if f.fwdLen.N() == 0 {
		return 0
	}
	return f.fwdLen.Sum() / float64(f.fwdLen.N())
}

func (f *Flow) BwdAvgSegmentSize() float64 {
	if f.bwdLen.N() == 0 {
		return 0
	}
	return f.bwdLen.Sum() / float64(f.bwdLen.N())
}

func (f *Flow) subflowAvg(v int64) int64 {
	if f.sfCount <= 0 {
		return 0
	}
	return v / f.sfCount
}

// Values computes the selected columns of s in schema order.
func (f *Flow) Values(s *features.Schema) []features.Value {
	cols := s.Columns()
	out := make([]features.Value, len(cols))
	for i, c := range cols {
		out[i] = f.value(c.ID, s)
	}
	return out
}

// ToRow renders the selected columns as strings.
func (f *Flow) ToRow(s *features.Schema) []string {
	cols := s.Columns()
	row := make([]string, len(cols))
	for i, c := range cols {
		row[i] = features.Format(c, f.value(c.ID, s))
	}
	return row
}

// Line renders the row joined by the default separator.
func (f *Flow) Line(s *features.Schema) string {
	return strings.Join(f.ToRow(s), features.DefaultSeparator)
}

// Typed renders the selected columns as float64 or string values.
func (f *Flow) Typed(s *features.Schema) []interface{} {
	cols := s.Columns()
	out := make([]interface{}, len(cols))
	for i, c := range cols {
		out[i] = features.Typed(c, f.value(c.ID, s))
	}
	return out
}

func (f *Flow) value(id features.ID, s *features.Schema) features.Value {
	num := features.Number
	switch id {
	case features.FlowID:
		return features.Text(f.ForwardKey())
	case features.SrcIP:
		return features.Text(f.src.String())
	case features.SrcPort:
		return num(float64(f.srcPort))
	case features.DstIP:
		return features.Text(f.dst.String())
	case features.DstPort:
		return num(float64(f.dstPort))
	case features.Protocol:
		return features.Code(int64(f.protocol))
	case features.Timestamp:
		return features.Text(time.UnixMicro(f.startTime).Format(TimestampLayout))
	case features.FlowDuration:
		return num(float64(f.Duration()))
	case features.TotFwdPkts:
		return num(float64(f.fwdLen.N()))
	case features.TotBwdPkts:
		return num(float64(f.bwdLen.N()))
	case features.TotLenFwdPkts:
		return num(float64(f.fwdBytes))
	case features.TotLenBwdPkts:
		return num(float64(f.bwdBytes))
	case features.FwdPktLenMax:
		return num(f.fwdLen.Max())
	case features.FwdPktLenMin:
		return num(f.fwdLen.Min())
	case features.FwdPktLenMean:
		return num(f.fwdLen.Mean())
	case features.FwdPktLenStd:
		return num(f.fwdLen.Std())
	case features.BwdPktLenMax:
		return num(f.bwdLen.Max())
	case features.BwdPktLenMin:
		return num(f.bwdLen.Min())
	case features.BwdPktLenMean:
		return num(f.bwdLen.Mean())
	case features.BwdPktLenStd:
		return num(f.bwdLen.Std())
	case features.FlowBytsPerSec:
		return num(f.FlowBytesPerSecond())
	case features.FlowPktsPerSec:
		return num(f.FlowPacketsPerSecond())
	case features.FlowIATMean:
		return num(f.flowIAT.Mean())
	case features.FlowIATStd:
		return num(f.flowIAT.Std())
	case features.FlowIATMax:
		return num(f.flowIAT.Max())
	case features.FlowIATMin:
		return num(f.flowIAT.Min())
	case features.FwdIATTot:
		return num(f.fwdIAT.Sum())
	case features.FwdIATMean:
		return num(f.fwdIAT.Mean())
	case features.FwdIATStd:
		return num(f.fwdIAT.Std())
	case features.FwdIATMax:
		return num(f.fwdIAT.Max())
	case features.FwdIATMin:
		return num(f.fwdIAT.Min())
	case features.BwdIATTot:
		return num(f.bwdIAT.Sum())
	case features.BwdIATMean:
		return num(f.bwdIAT.Mean())
	case features.BwdIATStd:
		return num(f.bwdIAT.Std())
	case features.BwdIATMax:
		return num(f.bwdIAT.Max())
	case features.BwdIATMin:
		return num(f.bwdIAT.Min())
	case features.FwdPSHFlags:
		return num(float64(f.fwdPSH))
	case features.BwdPSHFlags:
		return num(float64(f.bwdPSH))
	case features.FwdURGFlags:
		return num(float64(f.fwdURG))
	case features.BwdURGFlags:
		return num(float64(f.bwdURG))
	case features.FwdHeaderLen:
		return num(float64(f.fwdHeader))
	case features.BwdHeaderLen:
		return num(float64(f.bwdHeader))
	case features.FwdPktsPerSec:
		return num(f.FwdPacketsPerSecond())
	case features.BwdPktsPerSec:
		return num(f.BwdPacketsPerSecond())
	case features.PktLenMin:
		return num(f.flowLen.Min())
	case features.PktLenMax:
		return num(f.flowLen.Max())
	case features.PktLenMean:
		return num(f.flowLen.Mean())
	case features.PktLenStd:
		return num(f.flowLen.Std())
	case features.PktLenVar:
		return num(f.flowLen.Variance())
	case features.FINFlagCnt, features.SYNFlagCnt, features.RSTFlagCnt, features.PSHFlagCnt,
		features.ACKFlagCnt, features.URGFlagCnt, features.CWRFlagCnt, features.ECEFlagCnt:
		return num(float64(f.flagCounts[id-features.FINFlagCnt]))
	case features.DownUpRatio:
		return num(f.DownUpRatio())
	case features.PktSizeAvg:
		return num(f.AvgPacketSize())
	case features.FwdSegSizeAvg:
		return num(f.FwdAvgSegmentSize())
	case features.BwdSegSizeAvg:
		return num(f.BwdAvgSegmentSize())
	case features.FwdBytsPerBulkAvg:
		return num(float64(f.fwdBulk.avgBytesPerBulk()))
	case features.FwdPktsPerBulkAvg:
		return num(float64(f.fwdBulk.avgPacketsPerBulk()))
	case features.FwdBulkRateAvg:
		return num(float64(f.fwdBulk.avgRate()))
	case features.BwdBytsPerBulkAvg:
		return num(float64(f.bwdBulk.avgBytesPerBulk()))
	case features.BwdPktsPerBulkAvg:
		return num(float64(f.bwdBulk.avgPacketsPerBulk()))
	case features.BwdBulkRateAvg:
		return num(float64(f.bwdBulk.avgRate()))
	case features.SubflowFwdPkts:
		return num(float64(f.subflowAvg(f.fwdLen.N())))
	case features.SubflowFwdByts:
		return num(float64(f.subflowAvg(f.fwdBytes)))
	case features.SubflowBwdPkts:
		return num(float64(f.subflowAvg(f.bwdLen.N())))
	case features.SubflowBwdByts:
		return num(float64(f.subflowAvg(f.bwdBytes)))
	case features.InitFwdWinByts:
		return num(float64(f.initWinFwd))
	case features.InitBwdWinByts:
		return num(float64(f.initWinBwd))
	case features.FwdActDataPkts:
		return num(float64(f.actDataFwd))
	case features.FwdSegSizeMin:
		return num(float64(f.minSegFwd))
	case features.ActiveMean:
		return num(f.active.Mean())
	case features.ActiveStd:
		return num(f.active.Std())
	case features.ActiveMax:
		return num(f.active.Max())
	case features.ActiveMin:
		return num(f.active.Min())
	case features.IdleMean:
		return num(f.idle.Mean())
	case features.IdleStd:
		return num(f.idle.Std())
	case features.IdleMax:
		return num(f.idle.Max())
	case features.IdleMin:
		return num(f.idle.Min())
	case features.Label:
		return features.Text(s.Label())
	}
	return features.Number(0)
}
