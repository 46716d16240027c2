package shaping

import (
	"time"

	"github.com/multiverse-labs/operant/internal/config"
	"github.com/multiverse-labs/operant/internal/fsm"
	"github.com/multiverse-labs/operant/internal/panel"
)

// RunSleepBlock puts the chamber to sleep: the house light goes off on
// entry, the chamber polls the light schedule every idlePoll until back
// in-schedule, then the house light comes back on before control
// returns to the previously-active block.
func RunSleepBlock(clock fsm.Clock, houseLight panel.DigitalOutput, schedule config.LightSchedule, idlePoll time.Duration) error {
	if err := houseLight.Off(); err != nil {
		return err
	}
	for {
		inSchedule, err := schedule.InSchedule(clock.Now())
		if err != nil {
			return err
		}
		if inSchedule {
			return houseLight.On()
		}
		clock.Sleep(idlePoll)
	}
}
