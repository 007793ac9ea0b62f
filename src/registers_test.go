package lacore

/*------------------------------------------------------------------
 *
 * Purpose:	Wire-format tests for SigmaRegisterIO and LA2016RegisterIO,
 *		spec.md section 4.2.
 *
 *------------------------------------------------------------------*/

import "testing"

func TestSigmaRegisterIOWriteRegEncodesAddressThenData(t *testing.T) {
	var ft = &fakeTransport{}
	var rio = NewSigmaRegisterIO(ft)

	if err := rio.WriteReg(3, []byte{0x5a}); err != nil {
		t.Fatalf("WriteReg failed: %v", err)
	}
	if len(ft.writeLog) != 1 {
		t.Fatalf("got %d writes, want 1", len(ft.writeLog))
	}
	var want = []byte{
		cmdAddrLow | 0x03, cmdAddrHigh | 0x00,
		cmdDataLow | 0x0a, cmdDataHighWrite | 0x05,
	}
	var got = ft.writeLog[0]
	if len(got) != len(want) {
		t.Fatalf("got %d bytes, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("byte %d: got %#02x, want %#02x", i, got[i], want[i])
		}
	}
}

func TestSigmaRegisterIOWriteRegRejectsOversizeSpan(t *testing.T) {
	var ft = &fakeTransport{}
	var rio = NewSigmaRegisterIO(ft)
	var err = rio.WriteReg(0, make([]byte, maxRegisterSpan+1))
	var ce *CoreError
	if !asCoreError(err, &ce) || ce.Kind != KindBug {
		t.Fatalf("expected a bug error, got %v", err)
	}
}

func TestSigmaRegisterIOReadReg16LittleEndian(t *testing.T) {
	var ft = &fakeTransport{readQueue: []queuedResp{{data: []byte{0x34, 0x12}}}}
	var rio = NewSigmaRegisterIO(ft)
	var v, err = rio.ReadReg16(sigmaRegStopPosLow)
	if err != nil {
		t.Fatalf("ReadReg16 failed: %v", err)
	}
	if v != 0x1234 {
		t.Fatalf("got %#04x, want %#04x", v, 0x1234)
	}
}

func TestSigmaRegisterIOReadPos24(t *testing.T) {
	var ft = &fakeTransport{readQueue: []queuedResp{{data: []byte{0x01, 0x02, 0x03}}}}
	var rio = NewSigmaRegisterIO(ft)
	var v, err = rio.ReadPos24(sigmaRegStopPosLow)
	if err != nil {
		t.Fatalf("ReadPos24 failed: %v", err)
	}
	if v != 0x030201 {
		t.Fatalf("got %#06x, want %#06x", v, 0x030201)
	}
}

func TestSigmaRegisterIOReadRegShortReadIsError(t *testing.T) {
	var ft = &fakeTransport{readQueue: []queuedResp{{data: []byte{0x01}}}} // 1 byte, 2 requested
	var rio = NewSigmaRegisterIO(ft)
	var _, err = rio.ReadReg(0, 2, false)
	if err == nil {
		t.Fatal("expected an error on short read")
	}
}

func TestLA2016RegisterIOWriteReg32RoundTrip(t *testing.T) {
	var ft = &fakeTransport{}
	var rio = NewLA2016RegisterIO(ft)
	if err := rio.WriteReg32(laRegSampling, 0xdeadbeef); err != nil {
		t.Fatalf("WriteReg32 failed: %v", err)
	}
	if len(ft.ctrlOutLog) != 1 {
		t.Fatalf("got %d ctrlOut calls, want 1", len(ft.ctrlOutLog))
	}
	var rec = ft.ctrlOutLog[0]
	if rec.request != laReqFPGASPI || rec.value != laRegSampling {
		t.Errorf("got request=%#02x value=%#04x, want %#02x/%#04x", rec.request, rec.value, laReqFPGASPI, uint16(laRegSampling))
	}
	if le32(rec.data) != 0xdeadbeef {
		t.Errorf("wrote %#08x, want %#08x", le32(rec.data), uint32(0xdeadbeef))
	}
}

func TestLA2016RegisterIOReadReg32(t *testing.T) {
	var ft = &fakeTransport{ctrlInQueue: []queuedResp{{data: le32Bytes(0x11223344)}}}
	var rio = NewLA2016RegisterIO(ft)
	var v, err = rio.ReadReg32(laRegRun)
	if err != nil {
		t.Fatalf("ReadReg32 failed: %v", err)
	}
	if v != 0x11223344 {
		t.Fatalf("got %#08x, want %#08x", v, 0x11223344)
	}
}

func TestLA2016RegisterIOWriteRegRejectsOversizeSpan(t *testing.T) {
	var ft = &fakeTransport{}
	var rio = NewLA2016RegisterIO(ft)
	var err = rio.WriteReg(laRegRun, make([]byte, maxRegisterSpan+1))
	var ce *CoreError
	if !asCoreError(err, &ce) || ce.Kind != KindBug {
		t.Fatalf("expected a bug error, got %v", err)
	}
}
