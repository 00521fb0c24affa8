package image

const hostMachine = MachineAMD64
